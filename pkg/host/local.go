package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Local 进程内宿主：自己驱动主循环，世界/玩家/登录事件由嵌入方写入
type Local struct {
	tickDuration time.Duration

	mu        sync.Mutex
	closed    bool
	tick      uint64
	lastTick  time.Time
	tasks     []*timerTask
	worlds    []World
	players   map[string]Player
	loginSubs map[uint64]func(LoginResult)
	nextSub   uint64
	averager  *tickAverager

	wg sync.WaitGroup
}

var _ Host = (*Local)(nil)

// NewLocal 创建本地宿主，tickDuration<=0 时使用 50ms
func NewLocal(tickDuration time.Duration) *Local {
	if tickDuration <= 0 {
		tickDuration = 50 * time.Millisecond
	}
	return &Local{
		tickDuration: tickDuration,
		players:      make(map[string]Player),
		loginSubs:    make(map[uint64]func(LoginResult)),
		averager:     newTickAverager(tickDuration),
	}
}

// TickDuration 单 tick 时长
func (l *Local) TickDuration() time.Duration { return l.tickDuration }

// Run 阻塞驱动主循环直到 ctx 结束
func (l *Local) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick 推进一个 tick：同步任务在调用方 goroutine 执行，异步任务各自起 goroutine
func (l *Local) Tick() {
	start := time.Now()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if !l.lastTick.IsZero() {
		l.averager.observeInterval(start.Sub(l.lastTick))
	}
	l.lastTick = start
	l.tick++

	var due []*timerTask
	live := l.tasks[:0]
	for _, t := range l.tasks {
		if t.cancelled.Load() {
			continue
		}
		live = append(live, t)
		if l.tick >= t.next {
			due = append(due, t)
			t.next = l.tick + t.period
		}
	}
	l.tasks = live
	for _, t := range due {
		if t.async {
			l.wg.Add(1)
		}
	}
	l.mu.Unlock()

	for _, t := range due {
		if t.async {
			go func(t *timerTask) {
				defer l.wg.Done()
				t.run()
			}(t)
			continue
		}
		t.run()
	}

	l.mu.Lock()
	l.averager.observeSpent(time.Since(start))
	l.mu.Unlock()
}

// Close 停止调度并等待运行中的异步任务结束，之后的调度请求返回 ErrClosed
func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	for _, t := range l.tasks {
		t.cancelled.Store(true)
	}
	l.tasks = nil
	l.mu.Unlock()
	l.wg.Wait()
}

// RunTaskTimer 实现 Scheduler
func (l *Local) RunTaskTimer(task func(), delayTicks, periodTicks int) (Task, error) {
	return l.schedule(task, delayTicks, periodTicks, false)
}

// RunTaskTimerAsync 实现 Scheduler
func (l *Local) RunTaskTimerAsync(task func(), delayTicks, periodTicks int) (Task, error) {
	return l.schedule(task, delayTicks, periodTicks, true)
}

func (l *Local) schedule(task func(), delayTicks, periodTicks int, async bool) (Task, error) {
	if task == nil {
		return nil, fmt.Errorf("host: nil task")
	}
	if periodTicks < 1 {
		return nil, fmt.Errorf("host: period must be at least one tick (got %d)", periodTicks)
	}
	if delayTicks < 1 {
		delayTicks = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	t := &timerTask{
		fn:     task,
		async:  async,
		period: uint64(periodTicks),
		next:   l.tick + uint64(delayTicks),
	}
	l.tasks = append(l.tasks, t)
	return t, nil
}

// OnlinePlayers 按名字排序的在线玩家
func (l *Local) OnlinePlayers() []Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	players := make([]Player, 0, len(l.players))
	for _, p := range l.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return players
}

// Worlds 按加载顺序返回世界
func (l *Local) Worlds() []World {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]World(nil), l.worlds...)
}

// TPS 实现 Server
func (l *Local) TPS() [3]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.averager.averages()
}

// AverageTickTime 实现 Server
func (l *Local) AverageTickTime() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.averager.mspt()
}

// SubscribeLogins 实现 Server
func (l *Local) SubscribeLogins(fn func(LoginResult)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.loginSubs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.loginSubs, id)
		})
	}
}

// SetWorld 新增或更新世界
func (l *Local) SetWorld(w World) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.worlds {
		if l.worlds[i].Name == w.Name {
			l.worlds[i] = w
			return
		}
	}
	l.worlds = append(l.worlds, w)
}

// RemoveWorld 卸载世界
func (l *Local) RemoveWorld(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.worlds {
		if l.worlds[i].Name == name {
			l.worlds = append(l.worlds[:i], l.worlds[i+1:]...)
			return
		}
	}
}

// Join 玩家上线或更新状态
func (l *Local) Join(p Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[p.Name] = p
}

// Quit 玩家下线
func (l *Local) Quit(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.players, name)
}

// Login 发布一次登录尝试，订阅者在调用方 goroutine 上执行
func (l *Local) Login(result LoginResult) {
	l.mu.Lock()
	subs := make([]func(LoginResult), 0, len(l.loginSubs))
	for _, fn := range l.loginSubs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()
	for _, fn := range subs {
		fn(result)
	}
}

type timerTask struct {
	fn        func()
	async     bool
	period    uint64
	next      uint64
	cancelled atomic.Bool
}

func (t *timerTask) run() {
	if t.cancelled.Load() {
		return
	}
	t.fn()
}

// Cancel 取消任务，已在运行中的一次不受影响
func (t *timerTask) Cancel() {
	t.cancelled.Store(true)
}
