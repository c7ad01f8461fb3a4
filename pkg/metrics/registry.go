package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// Registers 隔离 Prometheus 默认实现：注册与采集两侧都通过接口暴露，便于单测替换
type Registers interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// promRegistry 包裹官方 *prometheus.Registry
type promRegistry struct {
	registry *prometheus.Registry
}

// NewPromRegistry 创建指标注册器，registry 为 nil 时新建
func NewPromRegistry(registry *prometheus.Registry) Registers {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &promRegistry{registry: registry}
}

// NewProcessRegistry 带 Go 运行时与进程指标的注册器（/metrics 使用）
func NewProcessRegistry() Registers {
	reg := NewPromRegistry(nil)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Register 重复注册同一指标时返回已存在的错误，由调用方决定是否复用
func (p *promRegistry) Register(c prometheus.Collector) error {
	return p.registry.Register(c)
}

// MustRegister 实现 prometheus.Registerer
func (p *promRegistry) MustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := p.registry.Register(c); err != nil {
			panic(err)
		}
	}
}

// Unregister 实现 prometheus.Registerer
func (p *promRegistry) Unregister(c prometheus.Collector) bool {
	return p.registry.Unregister(c)
}

// Gather 实现 prometheus.Gatherer
func (p *promRegistry) Gather() ([]*dto.MetricFamily, error) {
	return p.registry.Gather()
}

// registerOrReuse 已注册时返回已有的 collector
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
