// Package collector 内置 metric group：运行时、玩家、世界加载、TPS、登录、主机资源
package collector

import (
	"errors"

	"go.uber.org/zap"

	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/module"
)

// 内置 metric group id
const (
	RuntimeID      = "runtime"
	PlayerActiveID = "player-active"
	ChunkEntityID  = "server-chunk-entity"
	TpsID          = "server-tps"
	LoginID        = "server-login"
	SystemID       = "system"
)

var errNoServer = errors.New("collector requires a host server")

// base 所有采集器共享的身份信息，配置为空实现
type base struct {
	id   string
	name string
	log  *zap.Logger
}

func newBase(id, name string, env module.Env) base {
	return base{id: id, name: name, log: env.Log().With(zap.String("module", id))}
}

func (b *base) ID() string   { return b.id }
func (b *base) Name() string { return b.name }

// PollIntervalTicks 仅作提示，实际间隔由 options.global.scrape-interval-ticks 决定
func (b *base) PollIntervalTicks() int { return module.DefaultPollIntervalTicks }

func requireServer(env module.Env) (host.Server, error) {
	if env.Server == nil {
		return nil, errNoServer
	}
	return env.Server, nil
}
