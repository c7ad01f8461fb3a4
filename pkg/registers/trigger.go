package registers

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Trigger reload 入口：先重新读取配置文件，成功后 Manager.Reload
// HTTP、SIGHUP、文件监听共用同一个 Trigger，Fire 串行执行。
type Trigger struct {
	loader  Loader
	manager *Manager
	log     *zap.Logger

	mu sync.Mutex
}

func NewTrigger(loader Loader, manager *Manager, log *zap.Logger) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{loader: loader, manager: manager, log: log}
}

// Fire 配置读取失败时保留当前注册表并把错误告知 actor
func (t *Trigger) Fire(actor Actor) (ReloadReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	by := "operator"
	if actor != nil {
		by = actor.Name()
	}
	t.log.Info("reloading configuration", zap.String("actor", by))

	if err := t.loader.Load(); err != nil {
		err = fmt.Errorf("reload configuration: %w", err)
		t.log.Error("reload aborted, keeping current modules", zap.String("actor", by), zap.Error(err))
		if actor != nil {
			actor.Notify(zapcore.ErrorLevel, err.Error())
		}
		return ReloadReport{}, err
	}
	return t.manager.Reload(actor), nil
}
