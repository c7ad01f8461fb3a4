package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ManagerMetrics 模块管理器自监控指标，nil 接收者上的所有方法都是空操作
type ManagerMetrics struct {
	ScrapeDuration   prometheus.Observer
	EntriesScraped   prometheus.Counter
	DispatchDuration *prometheus.HistogramVec // consumer
	DispatchFailures *prometheus.CounterVec   // consumer
	QueueDepth       prometheus.Gauge
	BatchesDropped   prometheus.Counter
	Modules          *prometheus.GaugeVec // kind
	Reloads          prometheus.Counter
	ReloadFailures   *prometheus.CounterVec // stage
}

// NewManagerMetrics 创建并注册管理器指标
func (m *MetricFactory) NewManagerMetrics() *ManagerMetrics {
	// 0.1ms ~ 3.2s
	buckets := prometheus.ExponentialBuckets(0.0001, 2, 16)
	return &ManagerMetrics{
		ScrapeDuration: m.histogramVec("scrape_duration_seconds",
			"Duration of one scrape over all metric groups", buckets).WithLabelValues(),
		EntriesScraped: m.counter("entries_scraped_total",
			"Total metric entries produced by metric groups"),
		DispatchDuration: m.histogramVec("dispatch_duration_seconds",
			"Duration of one dispatch per updater", buckets, "consumer"),
		DispatchFailures: m.counterVec("dispatch_failures_total",
			"Total failed dispatch attempts per updater", "consumer"),
		QueueDepth: m.gauge("queue_batches",
			"Batches waiting in the hand-off queue"),
		BatchesDropped: m.counter("queue_dropped_batches_total",
			"Batches dropped because the hand-off queue was full"),
		Modules: m.gaugeVec("modules",
			"Registered modules per kind", "kind"),
		Reloads: m.counter("reloads_total",
			"Total configuration reloads"),
		ReloadFailures: m.counterVec("reload_failures_total",
			"Modules rejected during reload per stage", "stage"),
	}
}

func (mm *ManagerMetrics) ObserveScrape(d time.Duration, entries int) {
	if mm == nil {
		return
	}
	mm.ScrapeDuration.Observe(d.Seconds())
	mm.EntriesScraped.Add(float64(entries))
}

func (mm *ManagerMetrics) ObserveDispatch(consumer string, d time.Duration, ok bool) {
	if mm == nil {
		return
	}
	mm.DispatchDuration.WithLabelValues(consumer).Observe(d.Seconds())
	if !ok {
		mm.DispatchFailures.WithLabelValues(consumer).Inc()
	}
}

func (mm *ManagerMetrics) SetQueueDepth(n int) {
	if mm == nil {
		return
	}
	mm.QueueDepth.Set(float64(n))
}

func (mm *ManagerMetrics) IncDropped() {
	if mm == nil {
		return
	}
	mm.BatchesDropped.Inc()
}

func (mm *ManagerMetrics) SetModules(kind string, n int) {
	if mm == nil {
		return
	}
	mm.Modules.WithLabelValues(kind).Set(float64(n))
}

// ObserveReload 记录一次 reload 以及各阶段被拒绝的模块数
func (mm *ManagerMetrics) ObserveReload(instantiateFailures, configureFailures int) {
	if mm == nil {
		return
	}
	mm.Reloads.Inc()
	mm.ReloadFailures.WithLabelValues("instantiate").Add(float64(instantiateFailures))
	mm.ReloadFailures.WithLabelValues("configure").Add(float64(configureFailures))
}
