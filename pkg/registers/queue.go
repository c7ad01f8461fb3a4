package registers

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/metric-relay/pkg/metric"
)

// DropPolicy 队列满时的丢弃策略
type DropPolicy int

const (
	// DropOldest 丢弃队首最旧的批次
	DropOldest DropPolicy = iota
	// DropNewest 拒绝新入队的批次
	DropNewest
)

func (p DropPolicy) String() string {
	if p == DropNewest {
		return "drop-newest"
	}
	return "drop-oldest"
}

// ParseDropPolicy 解析 options.global.queue-policy
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch s {
	case "drop-oldest":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	default:
		return DropOldest, fmt.Errorf("unknown queue policy %q", s)
	}
}

// BatchQueue scrape 与 dispatch 之间的批次 FIFO，limit<=0 表示不限长
type BatchQueue struct {
	mu     sync.Mutex
	q      *queue.Queue
	limit  int
	policy DropPolicy
}

func NewBatchQueue(limit int, policy DropPolicy) *BatchQueue {
	return &BatchQueue{q: queue.New(), limit: limit, policy: policy}
}

// Configure 调整上限与策略，超出部分按新策略丢弃，返回丢弃的批次数
func (b *BatchQueue) Configure(limit int, policy DropPolicy) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit, b.policy = limit, policy

	dropped := 0
	for b.limit > 0 && b.q.Length() > b.limit {
		if b.policy == DropNewest {
			b.dropTailLocked()
		} else {
			b.q.Remove()
		}
		dropped++
	}
	return dropped
}

// dropTailLocked eapache/queue 只支持从队首移除，队尾丢弃需要重建
func (b *BatchQueue) dropTailLocked() {
	n := b.q.Length()
	rebuilt := queue.New()
	for i := 0; i < n-1; i++ {
		rebuilt.Add(b.q.Get(i))
	}
	b.q = rebuilt
}

// Push 入队，返回是否因队列已满丢弃了一个批次
func (b *BatchQueue) Push(batch []metric.Entry) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.q.Length() >= b.limit {
		if b.policy == DropNewest {
			return true
		}
		b.q.Remove()
		dropped = true
	}
	b.q.Add(batch)
	return dropped
}

// Pop 出队，队列为空时返回 false
func (b *BatchQueue) Pop() ([]metric.Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Length() == 0 {
		return nil, false
	}
	return b.q.Remove().([]metric.Entry), true
}

func (b *BatchQueue) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}
