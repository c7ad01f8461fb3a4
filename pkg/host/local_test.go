package host_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/metric-relay/pkg/host"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tickN(l *host.Local, n int) {
	for i := 0; i < n; i++ {
		l.Tick()
	}
}

func TestSyncTaskRunsOncePerPeriod(t *testing.T) {
	l := host.NewLocal(time.Millisecond)
	defer l.Close()

	var runs atomic.Int32
	_, err := l.RunTaskTimer(func() { runs.Add(1) }, 0, 5)
	require.NoError(t, err)

	l.Tick()
	assert.Equal(t, int32(1), runs.Load(), "delay 0 runs on the next tick")
	tickN(l, 4)
	assert.Equal(t, int32(1), runs.Load())
	l.Tick()
	assert.Equal(t, int32(2), runs.Load())
	tickN(l, 10)
	assert.Equal(t, int32(4), runs.Load())
}

func TestDelay(t *testing.T) {
	l := host.NewLocal(time.Millisecond)
	defer l.Close()

	var runs atomic.Int32
	_, err := l.RunTaskTimer(func() { runs.Add(1) }, 3, 10)
	require.NoError(t, err)
	tickN(l, 2)
	assert.Zero(t, runs.Load())
	l.Tick()
	assert.Equal(t, int32(1), runs.Load())
}

func TestCancel(t *testing.T) {
	l := host.NewLocal(time.Millisecond)
	defer l.Close()

	var runs atomic.Int32
	task, err := l.RunTaskTimer(func() { runs.Add(1) }, 0, 1)
	require.NoError(t, err)
	tickN(l, 3)
	task.Cancel()
	tickN(l, 3)
	assert.Equal(t, int32(3), runs.Load())
}

func TestAsyncTask(t *testing.T) {
	l := host.NewLocal(time.Millisecond)

	done := make(chan struct{}, 4)
	_, err := l.RunTaskTimerAsync(func() { done <- struct{}{} }, 0, 1)
	require.NoError(t, err)
	l.Tick()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async task did not run")
	}
	l.Close()
}

func TestRefusals(t *testing.T) {
	l := host.NewLocal(time.Millisecond)

	_, err := l.RunTaskTimer(func() {}, 0, 0)
	assert.Error(t, err)
	_, err = l.RunTaskTimer(nil, 0, 1)
	assert.Error(t, err)

	l.Close()
	_, err = l.RunTaskTimerAsync(func() {}, 0, 1)
	assert.ErrorIs(t, err, host.ErrClosed)
}

func TestWorldsAndPlayers(t *testing.T) {
	l := host.NewLocal(0)
	defer l.Close()

	l.SetWorld(host.World{Name: "world", Entities: 3})
	l.SetWorld(host.World{Name: "world_nether"})
	l.SetWorld(host.World{Name: "world", Entities: 7})
	worlds := l.Worlds()
	require.Len(t, worlds, 2)
	assert.Equal(t, 7, worlds[0].Entities)
	l.RemoveWorld("world_nether")
	assert.Len(t, l.Worlds(), 1)

	l.Join(host.Player{Name: "steve", World: "world"})
	l.Join(host.Player{Name: "alex", World: "world", Op: true})
	players := l.OnlinePlayers()
	require.Len(t, players, 2)
	assert.Equal(t, "alex", players[0].Name)
	l.Quit("alex")
	assert.Len(t, l.OnlinePlayers(), 1)
}

func TestLoginSubscription(t *testing.T) {
	l := host.NewLocal(0)
	defer l.Close()

	var got []host.LoginResult
	unsubscribe := l.SubscribeLogins(func(r host.LoginResult) { got = append(got, r) })
	l.Login(host.LoginAllowed)
	l.Login(host.LoginKickBanned)
	unsubscribe()
	unsubscribe()
	l.Login(host.LoginAllowed)

	assert.Equal(t, []host.LoginResult{host.LoginAllowed, host.LoginKickBanned}, got)
}

func TestTickStatistics(t *testing.T) {
	l := host.NewLocal(10 * time.Millisecond)
	defer l.Close()

	assert.Equal(t, [3]float64{100, 100, 100}, l.TPS())

	_, err := l.RunTaskTimer(func() { time.Sleep(2 * time.Millisecond) }, 0, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		l.Tick()
		time.Sleep(20 * time.Millisecond)
	}
	tps := l.TPS()
	assert.Less(t, tps[0], 100.0)
	assert.Greater(t, tps[0], 0.0)
	assert.GreaterOrEqual(t, l.AverageTickTime(), 2.0)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "SURVIVAL", host.Survival.String())
	assert.Equal(t, "kick_whitelist", host.LoginKickWhitelist.String())
	assert.Len(t, host.GameModes(), 4)
	assert.Len(t, host.LoginResults(), 5)
}
