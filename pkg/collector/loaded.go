package collector

import (
	"github.com/metric-relay/pkg/host"
	"github.com/metric-relay/pkg/metric"
	"github.com/metric-relay/pkg/module"
)

const (
	EntityLoaded = "server.entity"
	ChunkLoaded  = "server.chunk.loaded"
	ChunkPinned  = "server.chunk.pinned"
)

// ChunkEntity 每个世界的实体数、已加载区块数、强制加载区块数
type ChunkEntity struct {
	base
	server host.Server
}

// NewChunkEntity 工厂
func NewChunkEntity(env module.Env) (module.Module, error) {
	server, err := requireServer(env)
	if err != nil {
		return nil, err
	}
	return &ChunkEntity{base: newBase(ChunkEntityID, "Loaded entity / chunks", env), server: server}, nil
}

// Scrape 实现 module.Producer，按 实体 → 区块 → 强制区块 分组输出
func (c *ChunkEntity) Scrape() []metric.Entry {
	worlds := c.server.Worlds()
	entries := make([]metric.Entry, 0, len(worlds)*3)
	for _, w := range worlds {
		entries = append(entries, worldEntry(EntityLoaded, w.Name, w.Entities))
	}
	for _, w := range worlds {
		entries = append(entries, worldEntry(ChunkLoaded, w.Name, w.LoadedChunks))
	}
	for _, w := range worlds {
		entries = append(entries, worldEntry(ChunkPinned, w.Name, w.PinnedChunks))
	}
	return entries
}

func worldEntry(key, world string, value int) metric.Entry {
	return metric.NewTaggedEntry(key, map[string]string{"world": world}, float64(value))
}
