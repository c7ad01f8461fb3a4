package host

import (
	"math"
	"time"
)

const msptSamples = 100

// tickAverager 1/5/15 分钟 TPS 指数移动平均 + 最近 100 tick 平均耗时
// 单 tick 的采样间隔不固定，衰减系数按实际间隔计算（α=1-exp(-Δt/window)）
type tickAverager struct {
	nominal float64
	tps     [3]float64
	windows [3]float64

	spent [msptSamples]time.Duration
	next  int
	count int
	total time.Duration
}

func newTickAverager(tickDuration time.Duration) *tickAverager {
	nominal := float64(time.Second) / float64(tickDuration)
	return &tickAverager{
		nominal: nominal,
		tps:     [3]float64{nominal, nominal, nominal},
		windows: [3]float64{60, 300, 900},
	}
}

// observeInterval 记录相邻两个 tick 起点的间隔
func (a *tickAverager) observeInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	dt := interval.Seconds()
	current := math.Min(1/dt, a.nominal)
	for i, window := range a.windows {
		alpha := 1 - math.Exp(-dt/window)
		a.tps[i] = a.tps[i]*(1-alpha) + current*alpha
	}
}

// observeSpent 记录单个 tick 内同步任务耗时
func (a *tickAverager) observeSpent(spent time.Duration) {
	a.total += spent - a.spent[a.next]
	a.spent[a.next] = spent
	a.next = (a.next + 1) % msptSamples
	if a.count < msptSamples {
		a.count++
	}
}

func (a *tickAverager) averages() [3]float64 {
	return a.tps
}

func (a *tickAverager) mspt() float64 {
	if a.count == 0 {
		return 0
	}
	return float64(a.total) / float64(a.count) / float64(time.Millisecond)
}
