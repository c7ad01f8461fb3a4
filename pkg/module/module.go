// Package module 定义 metric group（生产者）与 updater（消费者）的模块契约
package module

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
)

// DefaultPollIntervalTicks 默认采集间隔（tick）
const DefaultPollIntervalTicks = 20

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID 模块 id 只允许字母、数字、下划线、中划线
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Module 所有模块的身份信息
type Module interface {
	// ID 注册表与配置中使用的稳定标识
	ID() string
	// Name 展示名，可包含解析后的目标地址
	Name() string
}

// Configurer 可选：读取 options.<kind-plural>.<id> 配置，section 不存在时为 nil
type Configurer interface {
	Configure(section *config.Section) bool
}

// Starter 可选：申请资源、订阅宿主事件
type Starter interface {
	Start()
}

// Halter 可选：释放全部资源，幂等
type Halter interface {
	Halt()
}

// Producer 生产者，Scrape 必须快速返回，不做网络 I/O
type Producer interface {
	Module
	Scrape() []metric.Entry
	PollIntervalTicks() int
}

// Consumer 消费者，返回本次投递是否成功
type Consumer interface {
	Module
	Dispatch(entries []metric.Entry) bool
}

// Env 模块工厂的构造环境
type Env struct {
	Server host.Server
	Logger *zap.Logger
}

// Log 返回非 nil 日志
func (e Env) Log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Kind 模块种类
type Kind int

const (
	KindMetricGroup Kind = iota
	KindUpdater
)

func (k Kind) String() string {
	switch k {
	case KindMetricGroup:
		return "metric-group"
	case KindUpdater:
		return "updater"
	default:
		return "unknown"
	}
}

// Plural 配置中的复数键名
func (k Kind) Plural() string {
	return k.String() + "s"
}

// Accepts 模块是否具备该种类所需的能力
func (k Kind) Accepts(m Module) bool {
	switch k {
	case KindMetricGroup:
		_, ok := m.(Producer)
		return ok
	case KindUpdater:
		_, ok := m.(Consumer)
		return ok
	default:
		return false
	}
}

// Configure 调用可选的 Configurer，未实现时视为成功
func Configure(m Module, section *config.Section) bool {
	if c, ok := m.(Configurer); ok {
		return c.Configure(section)
	}
	return true
}

// Start 调用可选的 Starter
func Start(m Module) {
	if s, ok := m.(Starter); ok {
		s.Start()
	}
}

// Halt 调用可选的 Halter
func Halt(m Module) {
	if h, ok := m.(Halter); ok {
		h.Halt()
	}
}
