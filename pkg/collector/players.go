package collector

import (
	"sort"

	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	PlayerActive = "player.active"
	PlayerOp     = "player.op"
)

// PlayersActive 按 world × gamemode 统计在线玩家，未出现的组合补 0，另统计在线 op 数
type PlayersActive struct {
	base
	server host.Server
}

// NewPlayersActive 工厂
func NewPlayersActive(env module.Env) (module.Module, error) {
	server, err := requireServer(env)
	if err != nil {
		return nil, err
	}
	return &PlayersActive{base: newBase(PlayerActiveID, "Number of players active", env), server: server}, nil
}

type worldMode struct {
	world string
	mode  host.GameMode
}

// Scrape 实现 module.Producer
func (p *PlayersActive) Scrape() []metric.Entry {
	players := p.server.OnlinePlayers()
	counts := make(map[worldMode]int)
	ops := 0
	for _, pl := range players {
		counts[worldMode{pl.World, pl.GameMode}]++
		if pl.Op {
			ops++
		}
	}

	// 1，已加载世界按加载顺序输出，全部 gamemode 补齐
	seen := make(map[string]bool)
	var worlds []string
	for _, w := range p.server.Worlds() {
		if !seen[w.Name] {
			seen[w.Name] = true
			worlds = append(worlds, w.Name)
		}
	}
	// 2，玩家所在但不在世界列表中的世界追加在后
	var extra []string
	for key := range counts {
		if !seen[key.world] {
			seen[key.world] = true
			extra = append(extra, key.world)
		}
	}
	sort.Strings(extra)
	worlds = append(worlds, extra...)

	entries := make([]metric.Entry, 0, len(worlds)*len(host.GameModes())+1)
	for _, world := range worlds {
		for _, mode := range host.GameModes() {
			tags := map[string]string{"world": world, "gamemode": mode.String()}
			entries = append(entries, metric.NewTaggedEntry(PlayerActive, tags, float64(counts[worldMode{world, mode}])))
		}
	}
	entries = append(entries, metric.NewTaggedEntry(PlayerOp, nil, float64(ops)))
	return entries
}
