package agent

import (
	"context"
	"errors"
	"fmt"

	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/goid"
	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/logger"
	"github.com/metric-relay/pkg/metrics"
	"github.com/metric-relay/pkg/registers"
	"github.com/metric-relay/pkg/server"
	"github.com/metric-relay/pkg/signal"
	"github.com/metric-relay/pkg/util"
)

// runAgent 守护进程主流程：宿主主循环 + 模块管理器 + 管理HTTP服务
func runAgent(cmd *cobra.Command, cfg *config.Config, store *config.Store) error {
	// 1，初始化日志
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2，初始化banner
	util.PrintBanner(cmd.OutOrStdout(), projectName, version.Info(), "blue")

	logger.SetDefaultModule("agent")
	logger.Info("Log initialization successful",
		zap.String("path", cfg.Log.Path), zap.String("level", cfg.Log.Level), zap.String("format", cfg.Log.Format))
	logger.Debug("Configuration initialization successful",
		zap.String("path", store.Path()), zap.Uint64("main_goid", goid.GetGID()))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 3，启动宿主主循环
	local := host.NewLocal(cfg.Host.TickDuration)
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		local.Run(ctx)
	}()

	// 4，自监控注册器 + 模块管理器
	registry := metrics.NewProcessRegistry()
	registry.MustRegister(versioncollector.NewCollector(metrics.Namespace))
	manager := registers.NewManager(store, local,
		registers.WithLogger(log.Named("registers")),
		registers.WithMetrics(metrics.NewMetricFactory(registry).NewManagerMetrics()),
	)
	trigger := registers.NewTrigger(store, manager, log.Named("reload"))
	manager.Reload(nil)

	stopCore := func(ctx context.Context) error {
		cancel()
		err := manager.Shutdown(ctx)
		local.Close()
		<-hostDone
		return err
	}

	// 5，管理HTTP服务
	httpServer := server.NewHTTPServer(cfg.Server, log.Named("http"), server.Deps{
		Reloader: trigger,
		Modules:  manager,
		Settings: store,
		Gatherer: registry,
	})
	if err := httpServer.Start(); err != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), signal.ShutdownTimeout)
		defer done()
		_ = stopCore(shutdownCtx)
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	// 6，配置文件监听
	if cfg.Watch && store.Path() != "" {
		watchActor := registers.NewLogActor("config watcher", log.Named("reload"))
		go func() {
			err := config.Watch(ctx, store.Path(), log.Named("watch"), func() {
				_, _ = trigger.Fire(watchActor)
			})
			if err != nil {
				log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 7，阻塞等待信号：SIGHUP reload，SIGINT/SIGTERM 优雅关闭
	hupActor := registers.NewLogActor("SIGHUP", log.Named("reload"))
	signal.WaitForShutdown(log, func() {
		_, _ = trigger.Fire(hupActor)
	}, func(ctx context.Context) error {
		// 关闭顺序：HTTP服务 → 模块管理器 → 宿主
		errHTTP := httpServer.Shutdown(ctx)
		errCore := stopCore(ctx)
		if err := errors.Join(errHTTP, errCore); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
	return nil
}
