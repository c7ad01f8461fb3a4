package registers_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
	"github.com/metric-relay/pkg/registers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type env struct {
	host  *host.Local
	store *config.Store
	logs  *observer.ObservedLogs
	mgr   *registers.Manager
}

func newEnv(t *testing.T, settings map[string]any, table []registers.Module) *env {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := host.NewLocal(time.Millisecond)
	store := config.NewStoreFromMap(settings)
	opts := []registers.Option{registers.WithLogger(zap.New(core))}
	if table != nil {
		opts = append(opts, registers.WithModules(table))
	}
	e := &env{host: h, store: store, logs: logs, mgr: registers.NewManager(store, h, opts...)}
	t.Cleanup(func() {
		_ = e.mgr.Shutdown(context.Background())
		h.Close()
	})
	return e
}

func enable(ids ...string) map[string]any {
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func (e *env) warnings(substr string) []observer.LoggedEntry {
	return e.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet(substr).AllUntimed()
}

func TestKnownModules(t *testing.T) {
	assert.Equal(t,
		[]string{"player-active", "runtime", "server-chunk-entity", "server-login", "server-tps", "system"},
		registers.KnownIDs(module.KindMetricGroup))
	assert.Equal(t, []string{"console", "graphite", "prometheus"}, registers.KnownIDs(module.KindUpdater))

	for _, m := range registers.KnownModules() {
		assert.True(t, module.ValidID(m.ID), m.ID)
	}
}

func TestReloadRegistersEnabledModules(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{fx.producer("p2", nil), fx.producer("p1", nil), fx.producer("p3", nil), fx.consumer("c1", nil)}
	e := newEnv(t, map[string]any{
		"metric-groups": map[string]any{"p1": true, "p2": true, "p3": false},
		"updaters":      enable("c1"),
	}, table)

	assert.Equal(t, registers.StateStopped, e.mgr.State())
	report := e.mgr.Reload(nil)

	assert.Equal(t, []string{"p1", "p2"}, report.Producers)
	assert.Equal(t, []string{"c1"}, report.Consumers)
	assert.Zero(t, report.InstantiateFailures)
	assert.Zero(t, report.ConfigureFailures)
	assert.Equal(t, module.DefaultPollIntervalTicks, report.ScrapeIntervalTicks)
	assert.True(t, report.Scheduled)
	assert.Equal(t, registers.StateRunning, e.mgr.State())

	assert.Equal(t, []registers.ModuleInfo{
		{ID: "p1", Name: "Fake p1", Kind: "metric-group"},
		{ID: "p2", Name: "Fake p2", Kind: "metric-group"},
		{ID: "c1", Name: "Fake c1", Kind: "updater"},
	}, e.mgr.Modules())
	assert.Nil(t, fx.last("p3"))
	assert.Equal(t, int32(1), fx.last("p1").starts.Load())
}

func TestReloadCountsFailures(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("good", nil),
		fx.producer("rejects", func(f *fake) { f.configure = func(*config.Section) bool { return false } }),
		fx.producer("explodes", func(f *fake) { f.configure = func(*config.Section) bool { panic("bad options") } }),
		failingFactory("offline", module.KindMetricGroup),
		panickingFactory("crashy", module.KindMetricGroup),
		bareFactory("bare", module.KindMetricGroup),
		fx.consumer("sink", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": map[string]any{
			"good": true, "rejects": true, "explodes": true, "offline": true,
			"crashy": true, "bare": true, "nonexistent": true, "weird": "sometimes",
		},
		"updaters": enable("sink"),
	}, table)

	actor := registers.NewMessageActor("tester")
	report := e.mgr.Reload(actor)

	// nonexistent, weird, offline, crashy, bare
	assert.Equal(t, 5, report.InstantiateFailures)
	// rejects, explodes
	assert.Equal(t, 2, report.ConfigureFailures)
	assert.Equal(t, []string{"good"}, report.Producers)

	assert.Equal(t, int32(1), fx.last("rejects").halts.Load(), "configure failure halts the module")
	assert.Equal(t, int32(1), fx.last("explodes").halts.Load())
	assert.Zero(t, fx.last("rejects").starts.Load())

	messages := actor.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "warn", messages[0].Level)
	assert.Contains(t, messages[0].Message, "5 modules failed to instantiate")
	assert.Contains(t, messages[0].Message, "2 modules failed to configure")

	assert.NotEmpty(t, e.logs.FilterMessageSnippet("module factory panicked").AllUntimed())
	assert.NotEmpty(t, e.warnings("unknown module"))
}

func TestReloadPassesModuleSection(t *testing.T) {
	fx := newFixture()
	var got *config.Section
	table := []registers.Module{
		fx.producer("p", nil),
		fx.consumer("graphite-like", func(f *fake) {
			f.configure = func(s *config.Section) bool { got = s; return true }
		}),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("graphite-like"),
		"options": map[string]any{
			"updaters": map[string]any{"graphite-like": map[string]any{"host": "localhost", "port": 2003}},
		},
	}, table)
	e.mgr.Reload(nil)

	require.NotNil(t, got)
	assert.Equal(t, "options.updaters.graphite-like", got.Path())
	assert.Equal(t, 2003, got.GetInt("port"))
	assert.Equal(t, int32(1), fx.last("p").configures.Load(), "absent section still configures")
}

func TestReloadWritesBackDefaults(t *testing.T) {
	fx := newFixture()
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("c"),
		"options": map[string]any{"global": map[string]any{
			"scrape-interval-ticks": -3,
			"queue-policy":          "drop-everything",
		}},
	}, []registers.Module{fx.producer("p", nil), fx.consumer("c", nil)})

	report := e.mgr.Reload(nil)
	assert.Equal(t, 20, report.ScrapeIntervalTicks)

	global := e.store.Section("options.global")
	require.NotNil(t, global)
	assert.Equal(t, 20, global.GetInt("scrape-interval-ticks"))
	assert.Equal(t, "drop-oldest", global.GetString("queue-policy"))
	assert.Equal(t, 0, global.GetInt("queue-depth"))
}

func TestScrapeConcatenatesInIDOrder(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("b", func(f *fake) { f.entries = []metric.Entry{entry("b.one", 1), entry("b.two", 2)} }),
		fx.producer("a", func(f *fake) { f.entries = []metric.Entry{entry("a.one", 1)} }),
		fx.producer("broken", func(f *fake) { f.scrape = func() []metric.Entry { panic("boom") } }),
		fx.producer("empty", nil),
		fx.consumer("c", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("a", "b", "broken", "empty"),
		"updaters":      enable("c"),
	}, table)
	e.mgr.Reload(nil)
	e.mgr.Stop()

	batch := e.mgr.Scrape()
	assert.Equal(t, []string{"a.one", "b.one", "b.two"}, keys(batch))
	assert.Equal(t, 1, e.mgr.Pending())
	assert.NotEmpty(t, e.logs.FilterMessageSnippet("Fake broken: scrape panicked").AllUntimed())

	e.mgr.Dispatch()
	assert.Zero(t, e.mgr.Pending())
	received := fx.last("c").batches()
	require.Len(t, received, 1)
	assert.ElementsMatch(t, []string{"a.one", "b.one", "b.two"}, keys(received[0]))
}

func TestEmptyScrapeIsNotQueued(t *testing.T) {
	fx := newFixture()
	e := newEnv(t, map[string]any{
		"metric-groups": enable("empty"),
		"updaters":      enable("c"),
	}, []registers.Module{fx.producer("empty", nil), fx.consumer("c", nil)})
	e.mgr.Reload(nil)
	e.mgr.Stop()

	assert.Empty(t, e.mgr.Scrape())
	assert.Zero(t, e.mgr.Pending())
	e.mgr.Dispatch()
	assert.Empty(t, fx.last("c").batches())
}

func TestDispatchFailureWarnsOnce(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("p", func(f *fake) { f.entries = []metric.Entry{entry("server.tps", 20)} }),
		fx.consumer("c1", func(f *fake) { f.dispatch = func([]metric.Entry) bool { return false } }),
		fx.consumer("c2", nil),
		fx.consumer("c3", func(f *fake) { f.dispatch = func([]metric.Entry) bool { panic("socket closed") } }),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("c1", "c2", "c3"),
	}, table)
	e.mgr.Reload(nil)
	e.mgr.Stop()

	e.mgr.Scrape()
	e.mgr.Dispatch()

	assert.Len(t, e.warnings("Fake c1"), 1)
	assert.Len(t, e.warnings("Fake c3"), 1)
	assert.Empty(t, e.warnings("Fake c2"))
	assert.Len(t, fx.last("c2").batches(), 1)
	assert.Len(t, fx.last("c1").batches(), 1, "no retry")
}

func TestReloadHaltsPreviousModulesOnce(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("pa", nil), fx.consumer("ca", nil),
		fx.producer("pb", nil), fx.consumer("cb", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("pa"),
		"updaters":      enable("ca"),
	}, table)
	e.mgr.Reload(nil)

	e.store.Set("metric-groups", enable("pb"))
	e.store.Set("updaters", enable("cb"))
	report := e.mgr.Reload(nil)

	assert.Equal(t, []string{"pb"}, report.Producers)
	assert.Equal(t, []string{"cb"}, report.Consumers)
	for _, id := range []string{"pa", "ca"} {
		require.Len(t, fx.instances(id), 1)
		assert.Equal(t, int32(1), fx.last(id).halts.Load(), id)
	}
	for _, id := range []string{"pb", "cb"} {
		assert.Zero(t, fx.last(id).halts.Load(), id)
		assert.Equal(t, int32(1), fx.last(id).starts.Load(), id)
	}
}

func TestStopStartScrapesOncePerInterval(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("p", func(f *fake) { f.entries = []metric.Entry{entry("k", 1)} }),
		fx.consumer("c", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("c"),
		"options":       map[string]any{"global": map[string]any{"scrape-interval-ticks": 5}},
	}, table)
	e.mgr.Reload(nil)

	e.mgr.Stop()
	e.mgr.Stop()
	assert.Equal(t, registers.StateStopped, e.mgr.State())
	require.NoError(t, e.mgr.Start())
	require.NoError(t, e.mgr.Start())
	assert.Equal(t, registers.StateRunning, e.mgr.State())

	for i := 0; i < 5; i++ {
		e.host.Tick()
	}
	assert.Equal(t, int32(1), fx.last("p").scrapes.Load())
	e.host.Tick()
	assert.Equal(t, int32(2), fx.last("p").scrapes.Load())
}

func TestRuntimeToConsoleEndToEnd(t *testing.T) {
	e := newEnv(t, map[string]any{
		"metric-groups": enable("runtime"),
		"updaters":      enable("console"),
		"options":       map[string]any{"global": map[string]any{"scrape-interval-ticks": 5}},
	}, nil)
	report := e.mgr.Reload(nil)
	require.Equal(t, []string{"runtime"}, report.Producers)
	require.Equal(t, []string{"console"}, report.Consumers)

	for i := 0; i < 5; i++ {
		e.host.Tick()
	}
	require.Eventually(t, func() bool {
		return e.logs.FilterLevelExact(zapcore.InfoLevel).FilterMessageSnippet("key=runtime.mem.total").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, e.logs.FilterMessageSnippet("key=runtime.mem.free").Len())
	// Shutdown 等待进行中的排空结束
	require.NoError(t, e.mgr.Shutdown(context.Background()))
	assert.Empty(t, e.warnings("failed to send updates"), "console dispatch must report success")
}

func TestSchedulerRefusalLeavesManagerStopped(t *testing.T) {
	fx := newFixture()
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("c"),
	}, []registers.Module{fx.producer("p", nil), fx.consumer("c", nil)})
	e.host.Close()

	report := e.mgr.Reload(nil)
	assert.False(t, report.Scheduled)
	assert.Equal(t, registers.StateStopped, e.mgr.State())
	assert.Len(t, e.mgr.Modules(), 2)
	assert.NotEmpty(t, e.logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessageSnippet("failed to schedule").AllUntimed())
	assert.Error(t, e.mgr.Start())
}

func TestNoModuleEnabledAdvisory(t *testing.T) {
	fx := newFixture()
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
	}, []registers.Module{fx.producer("p", nil)})

	actor := registers.NewMessageActor("tester")
	e.mgr.Reload(actor)
	var advisories int
	for _, msg := range actor.Messages() {
		if strings.Contains(msg.Message, "no module enabled") {
			advisories++
		}
	}
	assert.Equal(t, 1, advisories)
	assert.Equal(t, registers.StateRunning, e.mgr.State(), "idle tasks still start")

	e.store.Set("metric-groups", map[string]any{})
	e.mgr.Reload(nil)
	assert.Len(t, e.warnings("no module enabled"), 1)
}

func TestShutdownDrainsAndHalts(t *testing.T) {
	fx := newFixture()
	table := []registers.Module{
		fx.producer("p", func(f *fake) { f.entries = []metric.Entry{entry("k", 1)} }),
		fx.consumer("c", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("c"),
	}, table)
	e.mgr.Reload(nil)
	e.mgr.Scrape()
	e.mgr.Scrape()

	require.NoError(t, e.mgr.Shutdown(context.Background()))
	assert.Len(t, fx.last("c").batches(), 2)
	assert.Equal(t, int32(1), fx.last("p").halts.Load())
	assert.Equal(t, int32(1), fx.last("c").halts.Load())
	assert.Empty(t, e.mgr.Modules())
	assert.Equal(t, registers.StateStopped, e.mgr.State())
}

func TestSingleDrainAtATime(t *testing.T) {
	fx := newFixture()
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	table := []registers.Module{
		fx.producer("p", func(f *fake) { f.entries = []metric.Entry{entry("k", 1)} }),
		fx.consumer("slow", func(f *fake) {
			f.dispatch = func([]metric.Entry) bool {
				entered <- struct{}{}
				<-release
				return true
			}
		}),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("p"),
		"updaters":      enable("slow"),
	}, table)
	e.mgr.Reload(nil)
	e.mgr.Stop()

	e.mgr.Scrape()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.mgr.Dispatch()
	}()
	<-entered

	e.mgr.Scrape()
	e.mgr.Dispatch()
	assert.Equal(t, 1, e.mgr.Pending(), "second drain returned without dispatching")

	close(release)
	wg.Wait()
	assert.Len(t, fx.last("slow").batches(), 2)
}

func TestCycleSeesSingleRegistryGeneration(t *testing.T) {
	fx := newFixture()
	gen := func(id, key string) registers.Module {
		return fx.producer(id, func(f *fake) { f.entries = []metric.Entry{entry(key, 1)} })
	}
	table := []registers.Module{
		gen("a1", "gen.a"), gen("a2", "gen.a"),
		gen("b1", "gen.b"), gen("b2", "gen.b"),
		fx.consumer("c", nil),
	}
	e := newEnv(t, map[string]any{
		"metric-groups": enable("a1", "a2"),
		"updaters":      enable("c"),
	}, table)
	e.mgr.Reload(nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			e.mgr.Scrape()
			e.mgr.Dispatch()
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			e.store.Set("metric-groups", enable("b1", "b2"))
		} else {
			e.store.Set("metric-groups", enable("a1", "a2"))
		}
		e.mgr.Reload(nil)
	}
	close(stop)
	wg.Wait()
	e.mgr.Dispatch()

	var batches int
	for _, c := range fx.instances("c") {
		for _, batch := range c.batches() {
			batches++
			got := keys(batch)
			require.Len(t, got, 2, "a cycle scrapes both producers of one generation")
			assert.Equal(t, got[0], got[1], "batch mixes registry generations: %v", got)
		}
	}
	assert.NotZero(t, batches)
}
