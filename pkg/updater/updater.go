// Package updater 内置 updater：控制台、Graphite 推送、Prometheus 拉取
package updater

import (
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/module"
)

// 内置 updater id
const (
	ConsoleID    = "console"
	GraphiteID   = "graphite"
	PrometheusID = "prometheus"
)

func moduleLogger(env module.Env, id string) *zap.Logger {
	return env.Log().With(zap.String("module", id))
}
