package updater

import (
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

// Console 以 info 级别逐条打印 entry
type Console struct {
	log *zap.Logger
}

// NewConsole 工厂
func NewConsole(env module.Env) (module.Module, error) {
	return &Console{log: moduleLogger(env, ConsoleID)}, nil
}

func (c *Console) ID() string   { return ConsoleID }
func (c *Console) Name() string { return "Server Console" }

// Dispatch 实现 module.Consumer，总是成功
func (c *Console) Dispatch(entries []metric.Entry) bool {
	for _, e := range entries {
		c.log.Info(e.String())
	}
	return true
}
