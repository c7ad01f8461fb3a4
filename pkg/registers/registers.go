package registers

import (
	"sort"

	"github.com/metric-relay/pkg/collector"
	"github.com/metric-relay/pkg/module"
	"github.com/metric-relay/pkg/updater"
)

// Module 已知模块表中的一项，只有表中的工厂可以被实例化
type Module struct {
	ID      string
	Kind    module.Kind
	NewFunc func(env module.Env) (module.Module, error)
}

// 新增模块只需在此表添加一条
var knownModules = []Module{
	{ID: collector.RuntimeID, Kind: module.KindMetricGroup, NewFunc: collector.NewRuntime},
	{ID: collector.PlayerActiveID, Kind: module.KindMetricGroup, NewFunc: collector.NewPlayersActive},
	{ID: collector.ChunkEntityID, Kind: module.KindMetricGroup, NewFunc: collector.NewChunkEntity},
	{ID: collector.TpsID, Kind: module.KindMetricGroup, NewFunc: collector.NewTps},
	{ID: collector.LoginID, Kind: module.KindMetricGroup, NewFunc: collector.NewLogin},
	{ID: collector.SystemID, Kind: module.KindMetricGroup, NewFunc: collector.NewSystem},
	{ID: updater.ConsoleID, Kind: module.KindUpdater, NewFunc: updater.NewConsole},
	{ID: updater.GraphiteID, Kind: module.KindUpdater, NewFunc: updater.NewGraphite},
	{ID: updater.PrometheusID, Kind: module.KindUpdater, NewFunc: updater.NewPrometheus},
}

// KnownModules 内置模块表副本
func KnownModules() []Module {
	return append([]Module(nil), knownModules...)
}

// KnownIDs 指定种类的全部已知 id（排序）
func KnownIDs(kind module.Kind) []string {
	return knownIDs(knownModules, kind)
}

func knownIDs(table []Module, kind module.Kind) []string {
	var ids []string
	for _, m := range table {
		if m.Kind == kind {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func lookup(table []Module, kind module.Kind, id string) (Module, bool) {
	for _, m := range table {
		if m.Kind == kind && m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}
