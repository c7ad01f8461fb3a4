package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace 自监控指标前缀
const Namespace = "metric_relay"

// MetricFactory 指标工厂，统一创建并注册 counter/gauge/histogram
// 同名指标重复创建时复用已注册的实例（reload 会重复构建 Manager 组件）
type MetricFactory struct {
	reg prometheus.Registerer
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg prometheus.Registerer) *MetricFactory {
	return &MetricFactory{reg: reg}
}

func (m *MetricFactory) counter(name, help string) prometheus.Counter {
	return registerOrReuse(m.reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Name: name, Help: help,
	}))
}

func (m *MetricFactory) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return registerOrReuse(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Name: name, Help: help,
	}, labels))
}

func (m *MetricFactory) gauge(name, help string) prometheus.Gauge {
	return registerOrReuse(m.reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Name: name, Help: help,
	}))
}

func (m *MetricFactory) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return registerOrReuse(m.reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace, Name: name, Help: help,
	}, labels))
}

func (m *MetricFactory) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return registerOrReuse(m.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace, Name: name, Help: help, Buckets: buckets,
	}, labels))
}
