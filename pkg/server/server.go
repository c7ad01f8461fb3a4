// Package server 管理 HTTP 服务：自监控指标、模块列表、生效配置与 reload 入口
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/registers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultShutdownTimeout = 5 * time.Second

// Reloader reload 入口（registers.Trigger）
type Reloader interface {
	Fire(actor registers.Actor) (registers.ReloadReport, error)
}

// ModuleLister 模块状态（registers.Manager）
type ModuleLister interface {
	Modules() []registers.ModuleInfo
	State() registers.State
	Pending() int
}

// SettingsSource 当前生效配置（config.Store）
type SettingsSource interface {
	Settings() map[string]any
}

// Deps HTTP 服务依赖
type Deps struct {
	Reloader Reloader
	Modules  ModuleLister
	Settings SettingsSource
	Gatherer prometheus.Gatherer
}

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg    config.ServerConfig
	logger *zap.Logger
	deps   Deps
	server *http.Server
	mux    *customMux

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// customMux 注册路由时记录路径，启动日志输出
type customMux struct {
	http.ServeMux
	mu     sync.Mutex
	routes []string
}

func (m *customMux) Handle(pattern string, handler http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, pattern)
	m.ServeMux.Handle(pattern, handler)
}

func (m *customMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg config.ServerConfig, logger *zap.Logger, deps Deps) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	s := &Server{cfg: cfg, logger: logger, deps: deps, mux: &customMux{}}
	s.registerEndpoints()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.logMiddleware(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler 带访问日志的路由（测试使用）
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// logMiddleware 统一访问日志
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// registerEndpoints 注册核心路由
func (s *Server) registerEndpoints() {
	s.mux.HandleFunc("/{$}", s.handleIndex)
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(s.logger),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	s.mux.HandleFunc("GET /-/modules", s.handleModules)
	s.mux.HandleFunc("GET /-/config", s.handleConfig)
	s.mux.HandleFunc("POST /-/reload", s.handleReload)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>Metric Relay</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		a { display: block; margin: 8px 0; font-size: 18px; }
		code { background-color: #f0f0f0; padding: 2px 4px; }
	</style>
</head>
<body>
	<h1>Metric Relay</h1>
	<p>Version: <code>%s</code></p>
	<a href="/health">/health - 健康检查</a>
	<a href="/metrics">/metrics - 自监控指标</a>
	<a href="/-/modules">/-/modules - 已注册模块</a>
	<a href="/-/config">/-/config - 生效配置</a>
	<p><code>POST /-/reload</code> - 重新加载配置</p>
</body>
</html>
`, version.Info())
}

type modulesResponse struct {
	State   string                 `json:"state"`
	Pending int                    `json:"pending_batches"`
	Modules []registers.ModuleInfo `json:"modules"`
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Modules == nil {
		http.Error(w, "module manager not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, modulesResponse{
		State:   s.deps.Modules.State().String(),
		Pending: s.deps.Modules.Pending(),
		Modules: s.deps.Modules.Modules(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Settings == nil {
		http.Error(w, "configuration not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Settings.Settings())
}

type reloadResponse struct {
	OK       bool                    `json:"ok"`
	Error    string                  `json:"error,omitempty"`
	Messages []registers.Message     `json:"messages"`
	Report   *registers.ReloadReport `json:"report,omitempty"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		http.Error(w, "reload not available", http.StatusServiceUnavailable)
		return
	}
	actor := registers.NewMessageActor("http " + r.RemoteAddr)
	report, err := s.deps.Reloader.Fire(actor)

	resp := reloadResponse{OK: err == nil, Messages: actor.Messages()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	} else {
		resp.Report = &report
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Start 监听后在后台提供服务，监听失败同步返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Strings("handle_funcs", s.mux.routes))
	go func() {
		defer close(done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr 实际监听地址，未启动时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown 优雅关闭HTTP服务，ctx 无期限时使用默认超时
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded")
			_ = s.server.Close()
			return nil
		}
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
