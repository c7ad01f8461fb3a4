package registers_test

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
	"github.com/metric-relay/pkg/registers"
)

// fake 可编排行为的测试模块
type fake struct {
	id        string
	configure func(*config.Section) bool
	entries   []metric.Entry
	scrape    func() []metric.Entry
	dispatch  func([]metric.Entry) bool

	configures, starts, halts, scrapes atomic.Int32

	mu       sync.Mutex
	received [][]metric.Entry
}

func (f *fake) ID() string   { return f.id }
func (f *fake) Name() string { return "Fake " + f.id }

func (f *fake) Configure(s *config.Section) bool {
	f.configures.Add(1)
	if f.configure != nil {
		return f.configure(s)
	}
	return true
}

func (f *fake) Start() { f.starts.Add(1) }
func (f *fake) Halt()  { f.halts.Add(1) }

func (f *fake) batches() [][]metric.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]metric.Entry(nil), f.received...)
}

type fakeProducer struct{ *fake }

func (p fakeProducer) Scrape() []metric.Entry {
	p.scrapes.Add(1)
	if p.scrape != nil {
		return p.scrape()
	}
	return p.entries
}

func (p fakeProducer) PollIntervalTicks() int { return module.DefaultPollIntervalTicks }

type fakeConsumer struct{ *fake }

func (c fakeConsumer) Dispatch(entries []metric.Entry) bool {
	c.mu.Lock()
	c.received = append(c.received, entries)
	c.mu.Unlock()
	if c.dispatch != nil {
		return c.dispatch(entries)
	}
	return true
}

// bareModule 不具备任何能力
type bareModule struct{ id string }

func (b bareModule) ID() string   { return b.id }
func (b bareModule) Name() string { return b.id }

// fixture 记录工厂创建的全部实例
type fixture struct {
	mu   sync.Mutex
	made map[string][]*fake
}

func newFixture() *fixture {
	return &fixture{made: make(map[string][]*fake)}
}

func (fx *fixture) record(f *fake) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	fx.made[f.id] = append(fx.made[f.id], f)
}

func (fx *fixture) instances(id string) []*fake {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]*fake(nil), fx.made[id]...)
}

func (fx *fixture) last(id string) *fake {
	all := fx.instances(id)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (fx *fixture) producer(id string, setup func(*fake)) registers.Module {
	return registers.Module{ID: id, Kind: module.KindMetricGroup, NewFunc: func(module.Env) (module.Module, error) {
		f := &fake{id: id}
		if setup != nil {
			setup(f)
		}
		fx.record(f)
		return fakeProducer{f}, nil
	}}
}

func (fx *fixture) consumer(id string, setup func(*fake)) registers.Module {
	return registers.Module{ID: id, Kind: module.KindUpdater, NewFunc: func(module.Env) (module.Module, error) {
		f := &fake{id: id}
		if setup != nil {
			setup(f)
		}
		fx.record(f)
		return fakeConsumer{f}, nil
	}}
}

func failingFactory(id string, kind module.Kind) registers.Module {
	return registers.Module{ID: id, Kind: kind, NewFunc: func(module.Env) (module.Module, error) {
		return nil, errors.New("backend unavailable")
	}}
}

func panickingFactory(id string, kind module.Kind) registers.Module {
	return registers.Module{ID: id, Kind: kind, NewFunc: func(module.Env) (module.Module, error) {
		panic("factory exploded")
	}}
}

func bareFactory(id string, kind module.Kind) registers.Module {
	return registers.Module{ID: id, Kind: kind, NewFunc: func(module.Env) (module.Module, error) {
		return bareModule{id: id}, nil
	}}
}

func entry(key string, v float64) metric.Entry {
	return metric.NewTaggedEntry(key, nil, v)
}

func keys(entries []metric.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key()
	}
	return out
}
