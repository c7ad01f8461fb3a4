package collector

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	cload "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	SystemCPUUsage    = "system.cpu.usage"
	SystemLoad1       = "system.load.1"
	SystemLoad5       = "system.load.5"
	SystemLoad15      = "system.load.15"
	SystemMemTotal    = "system.mem.total"
	SystemMemAvail    = "system.mem.available"
	SystemMemUsed     = "system.mem.used"
	optCollectPerCore = "collect-per-core"
)

// systemSource gopsutil 读取入口，测试时替换
type systemSource struct {
	percent func(perCore bool) ([]float64, error)
	load    func() (*cload.AvgStat, error)
	memory  func() (*mem.VirtualMemoryStat, error)
}

var gopsutilSource = systemSource{
	// interval=0 与上一次调用比较，不阻塞
	percent: func(perCore bool) ([]float64, error) { return cpu.Percent(0, perCore) },
	load:    cload.Avg,
	memory:  mem.VirtualMemory,
}

// System 主机 CPU 使用率、负载、内存
// 单项读取失败只跳过该项并记录 debug 日志
type System struct {
	base
	src systemSource

	mu      sync.Mutex
	perCore bool
}

// NewSystem 工厂
func NewSystem(env module.Env) (module.Module, error) {
	return &System{base: newBase(SystemID, "Host system resources", env), src: gopsutilSource}, nil
}

// Configure 实现 module.Configurer，选项均可缺省
func (s *System) Configure(section *config.Section) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perCore = section.GetBool(optCollectPerCore)
	return true
}

// Scrape 实现 module.Producer
func (s *System) Scrape() []metric.Entry {
	s.mu.Lock()
	perCore := s.perCore
	s.mu.Unlock()

	var entries []metric.Entry

	// 1，CPU 使用率（百分比）
	if usage, err := s.src.percent(perCore); err != nil {
		s.log.Debug("read cpu usage failed", zap.Error(err))
	} else if perCore {
		for i, u := range usage {
			entries = append(entries, metric.NewTaggedEntry(SystemCPUUsage, map[string]string{"cpu": fmt.Sprintf("cpu%d", i)}, u))
		}
	} else if len(usage) > 0 {
		entries = append(entries, metric.NewTaggedEntry(SystemCPUUsage, map[string]string{"cpu": "total"}, usage[0]))
	}

	// 2，系统负载
	if avg, err := s.src.load(); err != nil {
		s.log.Debug("read load average failed", zap.Error(err))
	} else {
		entries = append(entries,
			metric.NewTaggedEntry(SystemLoad1, nil, avg.Load1),
			metric.NewTaggedEntry(SystemLoad5, nil, avg.Load5),
			metric.NewTaggedEntry(SystemLoad15, nil, avg.Load15),
		)
	}

	// 3，内存（字节）
	if vm, err := s.src.memory(); err != nil {
		s.log.Debug("read virtual memory failed", zap.Error(err))
	} else {
		entries = append(entries,
			metric.NewTaggedEntry(SystemMemTotal, nil, float64(vm.Total)),
			metric.NewTaggedEntry(SystemMemAvail, nil, float64(vm.Available)),
			metric.NewTaggedEntry(SystemMemUsed, nil, float64(vm.Used)),
		)
	}
	return entries
}
