package updater

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const defaultGraphiteTimeout = 5 * time.Second

// graphiteOptions options.updaters.graphite
type graphiteOptions struct {
	Host          string        `mapstructure:"host" validate:"required"`
	Port          int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	RootNamespace string        `mapstructure:"root-namespace"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Graphite plaintext 协议推送：每批次新建一条 TCP 连接，写一次后关闭
type Graphite struct {
	log *zap.Logger

	mu        sync.RWMutex
	host      string
	port      int
	namespace string
	timeout   time.Duration
}

// NewGraphite 工厂，未配置前处于 no backend 状态
func NewGraphite(env module.Env) (module.Module, error) {
	return &Graphite{log: moduleLogger(env, GraphiteID), timeout: defaultGraphiteTimeout}, nil
}

func (g *Graphite) ID() string { return GraphiteID }

// Name 展示名包含目标地址
func (g *Graphite) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nameLocked()
}

func (g *Graphite) nameLocked() string {
	if g.host == "" || g.port == 0 {
		return "Graphite Updater (no backend)"
	}
	return "Graphite Updater at " + net.JoinHostPort(g.host, strconv.Itoa(g.port))
}

// Configure 实现 module.Configurer
// section 不存在、host/port 缺失或取值非法时返回 false，模块保持 no backend 状态（Dispatch 恒为 true）
func (g *Graphite) Configure(section *config.Section) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.host, g.port, g.namespace, g.timeout = "", 0, "", defaultGraphiteTimeout

	if section == nil {
		g.log.Warn("no configuration found, check your config", zap.String("name", g.nameLocked()))
		return false
	}
	opts := graphiteOptions{Timeout: defaultGraphiteTimeout}
	if err := section.Decode(&opts); err != nil {
		g.log.Warn("invalid graphite options", zap.String("section", section.Path()), zap.Error(err))
		return false
	}
	g.namespace = opts.RootNamespace
	if opts.Timeout > 0 {
		g.timeout = opts.Timeout
	}

	if !section.IsSet("host") || !section.IsSet("port") {
		g.log.Warn("graphite host and port are required, check your config", zap.String("section", section.Path()))
		return false
	}
	if err := config.ValidateStruct(opts); err != nil {
		g.log.Warn("invalid graphite endpoint, check your config", zap.Error(err))
		return false
	}

	g.host, g.port = opts.Host, opts.Port
	g.log.Info("using graphite backend",
		zap.String("endpoint", net.JoinHostPort(g.host, strconv.Itoa(g.port))),
		zap.String("namespace", g.namespace))
	return true
}

// Halt 实现 module.Halter，清空目标地址，之后 Dispatch 不再建立连接
func (g *Graphite) Halt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.host, g.port = "", 0
}

// Payload entries 的 plaintext 表示，以换行分隔
func (g *Graphite) Payload(entries []metric.Entry) string {
	g.mu.RLock()
	namespace := g.namespace
	g.mu.RUnlock()

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Graphite(namespace)
	}
	return strings.Join(lines, "\n")
}

// Dispatch 实现 module.Consumer，连接或写入失败返回 false，不重试
func (g *Graphite) Dispatch(entries []metric.Entry) bool {
	g.mu.RLock()
	host, port, timeout := g.host, g.port, g.timeout
	g.mu.RUnlock()
	if host == "" || port == 0 || len(entries) == 0 {
		return true
	}

	if err := g.send(net.JoinHostPort(host, strconv.Itoa(port)), timeout, g.Payload(entries)); err != nil {
		g.log.Debug("graphite send failed", zap.Error(err))
		return false
	}
	return true
}

func (g *Graphite) send(addr string, timeout time.Duration, payload string) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}
