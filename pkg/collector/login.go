package collector

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const ServerLogin = "server.login"

// Login 按结果统计登录尝试次数，Start 订阅登录事件，Halt 取消订阅并清零
type Login struct {
	base
	server host.Server

	mu          sync.Mutex
	started     bool
	counters    map[host.LoginResult]int64
	unsubscribe func()
}

// NewLogin 工厂
func NewLogin(env module.Env) (module.Module, error) {
	server, err := requireServer(env)
	if err != nil {
		return nil, err
	}
	l := &Login{base: newBase(LoginID, "Server Login Attempt Counters", env), server: server}
	l.reset()
	return l, nil
}

func (l *Login) reset() {
	l.counters = make(map[host.LoginResult]int64, len(host.LoginResults()))
	for _, r := range host.LoginResults() {
		l.counters[r] = 0
	}
}

func (l *Login) onLogin(r host.LoginResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Halt 之后仍可能收到已分发出去的事件
	if !l.started {
		return
	}
	l.counters[r] = l.counters[r]%math.MaxInt64 + 1
}

// Start 实现 module.Starter，重复调用不会重复订阅
func (l *Login) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		return
	}
	l.started = true
	l.unsubscribe = l.server.SubscribeLogins(l.onLogin)
	l.log.Debug("subscribed to login events")
}

// Halt 实现 module.Halter
func (l *Login) Halt() {
	l.mu.Lock()
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.started = false
	l.reset()
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		l.log.Debug("unsubscribed from login events", zap.String("name", l.name))
	}
}

// Scrape 实现 module.Producer
func (l *Login) Scrape() []metric.Entry {
	l.mu.Lock()
	snapshot := make(map[host.LoginResult]int64, len(l.counters))
	for r, n := range l.counters {
		snapshot[r] = n
	}
	l.mu.Unlock()

	entries := make([]metric.Entry, 0, len(host.LoginResults()))
	for _, r := range host.LoginResults() {
		entries = append(entries, metric.NewTaggedEntry(ServerLogin, map[string]string{"result": r.String()}, float64(snapshot[r])))
	}
	return entries
}
