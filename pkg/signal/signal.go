package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout 优雅关闭的最长等待时间
const ShutdownTimeout = 5 * time.Second

// WaitForShutdown 监听信号：SIGHUP 触发 reload 后继续等待，SIGINT/SIGTERM 执行优雅关闭
func WaitForShutdown(logger *zap.Logger, reload func(), shutdownFunc func(ctx context.Context) error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	run(logger, sigChan, reload, shutdownFunc, ShutdownTimeout)
}

func run(logger *zap.Logger, sigChan <-chan os.Signal, reload func(), shutdownFunc func(ctx context.Context) error, timeout time.Duration) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1，阻塞等待信号，SIGHUP 不退出
	var sig os.Signal
	for {
		s, ok := <-sigChan
		if !ok {
			return
		}
		if s != syscall.SIGHUP {
			sig = s
			break
		}
		logger.Info("received reload signal", zap.String("signal", s.String()))
		if reload != nil {
			reload()
		}
	}
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// 2，超时控制关闭逻辑
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := shutdownFunc(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown completed")
	case <-ctx.Done():
		logger.Warn("shutdown timeout exceeded", zap.Duration("timeout", timeout))
	}
}
