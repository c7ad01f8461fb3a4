package updater

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	defaultListenAddr  = "0.0.0.0"
	defaultMetricsPath = "/metrics"
	shutdownTimeout    = 5 * time.Second
)

// prometheusOptions options.updaters.prometheus
type prometheusOptions struct {
	ListenAddr    string `mapstructure:"listen-addr" validate:"required,ip|hostname"`
	Port          int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path          string `mapstructure:"path" validate:"required,startswith=/"`
	RootNamespace string `mapstructure:"root-namespace"`
}

// Prometheus 拉取式 exporter：Dispatch 替换最近一批快照，抓取时以 gauge 形式输出
type Prometheus struct {
	log      *zap.Logger
	registry *prometheus.Registry
	snapshot *snapshotCollector

	mu     sync.Mutex
	opts   *prometheusOptions
	server *http.Server
	addr   net.Addr
	done   chan struct{}
}

// NewPrometheus 工厂
func NewPrometheus(env module.Env) (module.Module, error) {
	p := &Prometheus{
		log:      moduleLogger(env, PrometheusID),
		registry: prometheus.NewRegistry(),
		snapshot: &snapshotCollector{},
	}
	if err := p.registry.Register(p.snapshot); err != nil {
		return nil, fmt.Errorf("register snapshot collector: %w", err)
	}
	return p, nil
}

func (p *Prometheus) ID() string { return PrometheusID }

// Name 展示名包含监听地址
func (p *Prometheus) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opts == nil {
		return "Prometheus exporter (inactive - no backend)"
	}
	return "Prometheus exporter listening at " + net.JoinHostPort(p.opts.ListenAddr, strconv.Itoa(p.opts.Port)) + p.opts.Path
}

// Addr 实际监听地址，未启动时为 nil
func (p *Prometheus) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Configure 实现 module.Configurer，port 必填
func (p *Prometheus) Configure(section *config.Section) bool {
	p.mu.Lock()
	p.opts = nil
	p.mu.Unlock()

	if section == nil {
		p.log.Warn("no configuration found, check your config")
		return false
	}
	opts := prometheusOptions{ListenAddr: defaultListenAddr, Path: defaultMetricsPath}
	if err := section.Decode(&opts); err != nil {
		p.log.Warn("invalid prometheus options", zap.String("section", section.Path()), zap.Error(err))
		return false
	}
	if err := config.ValidateStruct(opts); err != nil {
		p.log.Warn("invalid prometheus endpoint, check your config", zap.Error(err))
		return false
	}

	p.mu.Lock()
	p.opts = &opts
	p.mu.Unlock()
	p.snapshot.setNamespace(opts.RootNamespace)
	return true
}

// Start 实现 module.Starter，监听失败只记录错误
func (p *Prometheus) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opts == nil || p.server != nil {
		return
	}

	addr := net.JoinHostPort(p.opts.ListenAddr, strconv.Itoa(p.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		p.log.Error("prometheus exporter listen failed", zap.String("addr", addr), zap.Error(err))
		return
	}

	mux := http.NewServeMux()
	mux.Handle(p.opts.Path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		ErrorLog:      zap.NewStdLog(p.log),
	}))
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	p.addr = ln.Addr()
	p.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("prometheus exporter stopped", zap.Error(err))
		}
	}(p.server, p.done)
	p.log.Info("prometheus exporter listening", zap.String("addr", p.addr.String()), zap.String("path", p.opts.Path))
}

// Halt 实现 module.Halter，关闭监听并清空快照
func (p *Prometheus) Halt() {
	p.mu.Lock()
	srv, done := p.server, p.done
	p.server, p.addr, p.done = nil, nil, nil
	p.mu.Unlock()

	p.snapshot.replace(nil)
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		p.log.Warn("prometheus exporter shutdown", zap.Error(err))
		_ = srv.Close()
	}
	<-done
}

// Dispatch 实现 module.Consumer，替换快照，总是成功
func (p *Prometheus) Dispatch(entries []metric.Entry) bool {
	p.snapshot.replace(entries)
	return true
}

// snapshotCollector unchecked collector：Describe 不输出描述，名字与标签在 Collect 时决定
type snapshotCollector struct {
	mu        sync.RWMutex
	namespace string
	entries   []metric.Entry
}

func (c *snapshotCollector) setNamespace(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespace = ns
}

// replace 同一 path 只保留最后一个 entry
func (c *snapshotCollector) replace(entries []metric.Entry) {
	index := make(map[string]int, len(entries))
	deduped := make([]metric.Entry, 0, len(entries))
	for _, e := range entries {
		key := e.Path().Graphite()
		if i, ok := index[key]; ok {
			deduped[i] = e
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, e)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = deduped
}

func (c *snapshotCollector) Describe(chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	namespace, entries := c.namespace, c.entries
	c.mu.RUnlock()

	for _, e := range entries {
		names := e.Path().TagNames()
		labels := make([]string, len(names))
		values := make([]string, len(names))
		for i, name := range names {
			labels[i] = SanitizeName(name)
			values[i], _ = e.Path().Tag(name)
		}
		desc := prometheus.NewDesc(MetricName(namespace, e.Key()), "metric-relay entry "+e.Key(), labels, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, e.Value(), values...)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(e.Timestamp(), m)
	}
}

// MetricName 拼接 namespace 与 key 并转换为合法的 Prometheus 指标名
func MetricName(namespace, key string) string {
	if namespace != "" {
		key = namespace + "." + key
	}
	return SanitizeName(key)
}

// SanitizeName 非 [A-Za-z0-9_] 字符替换为下划线，数字开头时补下划线
func SanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
