package registers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/metrics"
	"github.com/metric-relay/pkg/module"
)

// 全局选项
const (
	KeyScrapeIntervalTicks = "options.global.scrape-interval-ticks"
	KeyQueueDepth          = "options.global.queue-depth"
	KeyQueuePolicy         = "options.global.queue-policy"
)

// State Manager 状态
type State int32

const (
	StateStopped State = iota
	StateConfiguring
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// ReloadReport 一次 reload 的结果
type ReloadReport struct {
	Producers           []string `json:"metric_groups"`
	Consumers           []string `json:"updaters"`
	InstantiateFailures int      `json:"instantiate_failures"`
	ConfigureFailures   int      `json:"configure_failures"`
	ScrapeIntervalTicks int      `json:"scrape_interval_ticks"`
	Scheduled           bool     `json:"scheduled"`
}

// ModuleInfo 已注册模块快照
type ModuleInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Manager 模块注册表 + 调度器
// mu 保护注册表与周期任务；Reload/Start/Stop 共用 *Locked 私有方法，不需要可重入锁。
// drainMu 保证同一时刻只有一次队列排空，同一个 updater 不会被并发调用。
type Manager struct {
	settings Settings
	host     host.Host
	log      *zap.Logger
	metrics  *metrics.ManagerMetrics
	known    []Module

	mu           sync.Mutex
	producers    []module.Producer
	consumers    []module.Consumer
	interval     int
	scrapeTask   host.Task
	dispatchTask host.Task

	state   atomic.Int32
	queue   *BatchQueue
	drainMu sync.Mutex
}

// Option Manager 可选项
type Option func(*Manager)

// WithLogger 注入日志
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics 注入自监控指标
func WithMetrics(mm *metrics.ManagerMetrics) Option {
	return func(m *Manager) { m.metrics = mm }
}

// WithModules 替换已知模块表（嵌入方扩展或测试使用）
func WithModules(table []Module) Option {
	return func(m *Manager) { m.known = append([]Module(nil), table...) }
}

// NewManager 创建处于 Stopped 状态的 Manager
func NewManager(settings Settings, h host.Host, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		host:     h,
		log:      zap.NewNop(),
		known:    knownModules,
		interval: module.DefaultPollIntervalTicks,
		queue:    NewBatchQueue(0, DropOldest),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State 当前状态
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Reload 重新读取启用表并重建全部模块，actor 为 nil 时结果写入日志
func (m *Manager) Reload(actor Actor) ReloadReport {
	var report ReloadReport

	// 1，读取启用表（锁外，只读配置）
	requested := make(map[module.Kind][]string, 2)
	for _, kind := range []module.Kind{module.KindMetricGroup, module.KindUpdater} {
		ids, invalid := m.settings.Enabled(kind.Plural())
		for _, id := range invalid {
			m.log.Warn("enable flag is not a boolean, check your config", zap.String("kind", kind.String()), zap.String("id", id))
			report.InstantiateFailures++
		}
		requested[kind] = ids
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Store(int32(StateConfiguring))

	// 2，halt 并清空现有模块
	m.haltAllLocked()

	// 3，取消周期任务
	m.stopLocked()

	// 4，实例化 + 5，配置
	env := module.Env{Server: m.host, Logger: m.log}
	var producers []module.Producer
	var consumers []module.Consumer
	for _, kind := range []module.Kind{module.KindMetricGroup, module.KindUpdater} {
		for _, id := range requested[kind] {
			inst, ok := m.instantiate(kind, id, env)
			if !ok {
				report.InstantiateFailures++
				continue
			}
			if !m.configure(kind, id, inst) {
				report.ConfigureFailures++
				continue
			}
			switch kind {
			case module.KindMetricGroup:
				producers = append(producers, inst.(module.Producer))
			case module.KindUpdater:
				consumers = append(consumers, inst.(module.Consumer))
			}
		}
	}

	level := zapcore.InfoLevel
	if report.InstantiateFailures > 0 || report.ConfigureFailures > 0 {
		level = zapcore.WarnLevel
	}
	summary := fmt.Sprintf("%d modules failed to instantiate, %d modules failed to configure",
		report.InstantiateFailures, report.ConfigureFailures)
	notify(m.log, actor, level, summary,
		zap.Int("instantiate_failures", report.InstantiateFailures),
		zap.Int("configure_failures", report.ConfigureFailures))

	// 6，启动
	m.producers = startAll(m, producers)
	m.consumers = startAll(m, consumers)

	// 7，全局选项（解析结果回写到内存配置）
	m.interval = m.settings.IntOrDefault(KeyScrapeIntervalTicks, module.DefaultPollIntervalTicks, positive)
	depth := m.settings.IntOrDefault(KeyQueueDepth, 0, nonNegative)
	policy, _ := ParseDropPolicy(m.settings.StringOrDefault(KeyQueuePolicy, DropOldest.String(), validPolicy))
	if dropped := m.queue.Configure(depth, policy); dropped > 0 {
		m.log.Warn("queue shrunk, batches dropped", zap.Int("dropped", dropped))
		for i := 0; i < dropped; i++ {
			m.metrics.IncDropped()
		}
	}

	// 8，调度
	if err := m.startLocked(); err != nil {
		m.log.Error("failed to schedule scrape and dispatch tasks", zap.Error(err))
	}

	if len(m.producers) == 0 || len(m.consumers) == 0 {
		notify(m.log, actor, zapcore.WarnLevel, fmt.Sprintf("no module enabled: %d metric groups, %d updaters - check your config",
			len(m.producers), len(m.consumers)))
	}

	report.Producers = producerIDs(m.producers)
	report.Consumers = consumerIDs(m.consumers)
	report.ScrapeIntervalTicks = m.interval
	report.Scheduled = m.scrapeTask != nil
	m.metrics.ObserveReload(report.InstantiateFailures, report.ConfigureFailures)
	m.metrics.SetModules(module.KindMetricGroup.String(), len(m.producers))
	m.metrics.SetModules(module.KindUpdater.String(), len(m.consumers))
	m.log.Info("reload complete",
		zap.Strings("metric_groups", report.Producers),
		zap.Strings("updaters", report.Consumers),
		zap.Int("scrape_interval_ticks", report.ScrapeIntervalTicks),
		zap.String("state", m.State().String()))
	return report
}

// instantiate 查表并调用工厂；未知 id、工厂错误或 panic、缺少能力均视为失败
func (m *Manager) instantiate(kind module.Kind, id string, env module.Env) (module.Module, bool) {
	def, ok := lookup(m.known, kind, id)
	if !ok || !module.ValidID(id) {
		m.log.Warn("unknown module, check your config",
			zap.String("kind", kind.String()), zap.String("id", id),
			zap.Strings("known", knownIDs(m.known, kind)))
		return nil, false
	}

	var inst module.Module
	var err error
	if r, stack := protect(func() { inst, err = def.NewFunc(env) }); r != nil {
		m.log.Error("module factory panicked", append(panicFields(r, stack), zap.String("id", id))...)
		return nil, false
	}
	if err != nil {
		m.log.Warn("failed to instantiate module", zap.String("id", id), zap.Error(err))
		return nil, false
	}
	if inst == nil || !kind.Accepts(inst) {
		m.log.Warn("module does not implement the required capability", zap.String("id", id), zap.String("kind", kind.String()))
		return nil, false
	}
	return inst, true
}

// configure 配置失败或 panic 时 halt 模块
func (m *Manager) configure(kind module.Kind, id string, inst module.Module) bool {
	section := m.settings.Section("options." + kind.Plural() + "." + id)
	var ok bool
	if r, stack := protect(func() { ok = module.Configure(inst, section) }); r != nil {
		m.log.Warn(inst.Name()+": configure panicked", append(panicFields(r, stack), zap.String("id", id))...)
		ok = false
	} else if !ok {
		m.log.Warn(inst.Name()+": failed to configure, check your config", zap.String("id", id))
	}
	if !ok {
		m.halt(inst)
	}
	return ok
}

func (m *Manager) halt(inst module.Module) {
	if r, stack := protect(func() { module.Halt(inst) }); r != nil {
		m.log.Error(inst.Name()+": halt panicked", append(panicFields(r, stack), zap.String("id", inst.ID()))...)
	}
}

// startAll 按 id 排序启动，Start panic 的模块被 halt 并剔除
func startAll[T module.Module](m *Manager, mods []T) []T {
	sort.Slice(mods, func(i, j int) bool { return mods[i].ID() < mods[j].ID() })
	started := mods[:0]
	for _, inst := range mods {
		if r, stack := protect(func() { module.Start(inst) }); r != nil {
			m.log.Error(inst.Name()+": start panicked", append(panicFields(r, stack), zap.String("id", inst.ID()))...)
			m.halt(inst)
			continue
		}
		started = append(started, inst)
	}
	return started
}

func (m *Manager) haltAllLocked() {
	for _, p := range m.producers {
		m.halt(p)
	}
	for _, c := range m.consumers {
		m.halt(c)
	}
	m.producers, m.consumers = nil, nil
}

// Start 调度周期任务，已调度时为空操作
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.startLocked(); err != nil {
		m.log.Error("failed to schedule scrape and dispatch tasks", zap.Error(err))
		return err
	}
	return nil
}

// Stop 取消周期任务，已停止时为空操作
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) startLocked() error {
	if m.scrapeTask != nil {
		return nil
	}
	scrape, err := m.host.RunTaskTimer(func() { m.Scrape() }, 0, m.interval)
	if err != nil {
		m.state.Store(int32(StateStopped))
		return fmt.Errorf("schedule scrape task: %w", err)
	}
	dispatch, err := m.host.RunTaskTimerAsync(m.Dispatch, 0, m.interval)
	if err != nil {
		scrape.Cancel()
		m.state.Store(int32(StateStopped))
		return fmt.Errorf("schedule dispatch task: %w", err)
	}
	m.scrapeTask, m.dispatchTask = scrape, dispatch
	m.state.Store(int32(StateRunning))
	return nil
}

func (m *Manager) stopLocked() {
	if m.scrapeTask != nil {
		m.scrapeTask.Cancel()
	}
	if m.dispatchTask != nil {
		m.dispatchTask.Cancel()
	}
	m.scrapeTask, m.dispatchTask = nil, nil
	if m.State() == StateRunning {
		m.state.Store(int32(StateStopped))
	}
}

// Scrape 依次调用全部 metric group 并把非空批次放入队列，不等待 updater
func (m *Manager) Scrape() []metric.Entry {
	start := time.Now()

	m.mu.Lock()
	var batch []metric.Entry
	for _, p := range m.producers {
		var entries []metric.Entry
		if r, stack := protect(func() { entries = p.Scrape() }); r != nil {
			m.log.Error(p.Name()+": scrape panicked", append(panicFields(r, stack), zap.String("id", p.ID()))...)
			continue
		}
		batch = append(batch, entries...)
	}
	m.mu.Unlock()

	m.metrics.ObserveScrape(time.Since(start), len(batch))
	if len(batch) == 0 {
		return batch
	}
	if dropped := m.queue.Push(batch); dropped {
		m.metrics.IncDropped()
		m.log.Warn("hand-off queue full, batch dropped", zap.Int("depth", m.queue.Len()))
	}
	m.metrics.SetQueueDepth(m.queue.Len())
	return batch
}

// Dispatch 排空队列；已有排空在进行时立即返回
func (m *Manager) Dispatch() {
	if !m.drainMu.TryLock() {
		return
	}
	defer m.drainMu.Unlock()
	m.drainLocked()
}

func (m *Manager) drainLocked() {
	for {
		batch, ok := m.queue.Pop()
		if !ok {
			break
		}
		m.metrics.SetQueueDepth(m.queue.Len())
		m.dispatchBatch(batch)
	}
}

// dispatchBatch 锁内快照 updater，锁外并发投递并等待全部完成
func (m *Manager) dispatchBatch(batch []metric.Entry) {
	m.mu.Lock()
	consumers := append([]module.Consumer(nil), m.consumers...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c module.Consumer) {
			defer wg.Done()
			start := time.Now()
			var ok bool
			r, stack := protect(func() { ok = c.Dispatch(batch) })
			m.metrics.ObserveDispatch(c.Name(), time.Since(start), ok && r == nil)
			switch {
			case r != nil:
				m.log.Warn(c.Name()+": failed to send updates", append(panicFields(r, stack), zap.String("id", c.ID()))...)
			case !ok:
				m.log.Warn(c.Name()+": failed to send updates", zap.String("id", c.ID()))
			}
		}(c)
	}
	wg.Wait()
}

// Shutdown 停止调度，在 ctx 期限内排空一次队列，然后 halt 全部模块
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.drainMu.Lock()
		defer m.drainMu.Unlock()
		m.drainLocked()
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("drain queue: %w", ctx.Err())
		m.log.Warn("shutdown deadline reached before the queue was drained", zap.Int("pending", m.queue.Len()))
	}

	m.mu.Lock()
	m.haltAllLocked()
	m.mu.Unlock()
	m.metrics.SetModules(module.KindMetricGroup.String(), 0)
	m.metrics.SetModules(module.KindUpdater.String(), 0)
	m.log.Info("module manager shut down")
	return err
}

// Modules 已注册模块快照，metric group 在前，各自按 id 排序
func (m *Manager) Modules() []ModuleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]ModuleInfo, 0, len(m.producers)+len(m.consumers))
	for _, p := range m.producers {
		infos = append(infos, ModuleInfo{ID: p.ID(), Name: p.Name(), Kind: module.KindMetricGroup.String()})
	}
	for _, c := range m.consumers {
		infos = append(infos, ModuleInfo{ID: c.ID(), Name: c.Name(), Kind: module.KindUpdater.String()})
	}
	return infos
}

// Pending 队列中等待投递的批次数
func (m *Manager) Pending() int {
	return m.queue.Len()
}

func producerIDs(ps []module.Producer) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID()
	}
	return ids
}

func consumerIDs(cs []module.Consumer) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID()
	}
	return ids
}

func positive(n int) bool    { return n > 0 }
func nonNegative(n int) bool { return n >= 0 }

func validPolicy(s string) bool {
	_, err := ParseDropPolicy(s)
	return err == nil
}
