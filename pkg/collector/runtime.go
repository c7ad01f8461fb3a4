package collector

import (
	"runtime"

	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	RuntimeMemTotal   = "runtime.mem.total"
	RuntimeMemFree    = "runtime.mem.free"
	RuntimeGoroutines = "runtime.goroutines"
)

// Runtime Go 运行时内存与 goroutine 数
// total 为向操作系统申请且未归还的堆内存，free 为其中空闲部分（字节）
type Runtime struct {
	base
}

// NewRuntime 工厂
func NewRuntime(env module.Env) (module.Module, error) {
	return &Runtime{base: newBase(RuntimeID, "Go Runtime Information", env)}, nil
}

// Scrape 实现 module.Producer
func (r *Runtime) Scrape() []metric.Entry {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return []metric.Entry{
		metric.NewTaggedEntry(RuntimeMemTotal, nil, float64(ms.HeapSys-ms.HeapReleased)),
		metric.NewTaggedEntry(RuntimeMemFree, nil, float64(ms.HeapIdle-ms.HeapReleased)),
		metric.NewTaggedEntry(RuntimeGoroutines, nil, float64(runtime.NumGoroutine())),
	}
}
