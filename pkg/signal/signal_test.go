package signal

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReloadThenShutdown(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sigs := make(chan os.Signal, 3)
	sigs <- syscall.SIGHUP
	sigs <- syscall.SIGHUP
	sigs <- syscall.SIGTERM

	reloads, shutdowns := 0, 0
	run(zap.New(core), sigs, func() { reloads++ }, func(ctx context.Context) error {
		shutdowns++
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}, time.Second)

	assert.Equal(t, 2, reloads)
	assert.Equal(t, 1, shutdowns)
	assert.Equal(t, 2, logs.FilterMessage("received reload signal").Len())
	assert.Equal(t, 1, logs.FilterMessage("shutdown completed").Len())
}

func TestShutdownErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGINT

	run(zap.New(core), sigs, nil, func(context.Context) error { return errors.New("boom") }, time.Second)

	require.Equal(t, 1, logs.FilterMessage("shutdown failed").Len())
}

func TestShutdownTimeout(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM
	release := make(chan struct{})
	defer close(release)

	run(zap.New(core), sigs, nil, func(context.Context) error {
		<-release
		return nil
	}, 20*time.Millisecond)

	assert.Equal(t, 1, logs.FilterMessage("shutdown timeout exceeded").Len())
	assert.Zero(t, logs.FilterMessage("shutdown completed").Len())
}

func TestClosedChannelReturns(t *testing.T) {
	sigs := make(chan os.Signal)
	close(sigs)
	called := false
	run(nil, sigs, nil, func(context.Context) error { called = true; return nil }, time.Second)
	assert.False(t, called)
}
