package collector

import (
	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	ServerTps  = "server.tps"
	ServerMspt = "server.mspt"
)

// Tps 1 分钟平均 ticks-per-second 与平均每 tick 毫秒数
type Tps struct {
	base
	server host.Server
}

// NewTps 工厂
func NewTps(env module.Env) (module.Module, error) {
	server, err := requireServer(env)
	if err != nil {
		return nil, err
	}
	return &Tps{base: newBase(TpsID, "Server ticks-per-second", env), server: server}, nil
}

// Scrape 实现 module.Producer
func (t *Tps) Scrape() []metric.Entry {
	return []metric.Entry{
		metric.NewTaggedEntry(ServerTps, nil, t.server.TPS()[0]),
		metric.NewTaggedEntry(ServerMspt, nil, t.server.AverageTickTime()),
	}
}
