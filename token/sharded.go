package token

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pior/collector/internal"
)

// ShardedPool spreads tokens over independent pools to reduce contention on
// a single pool lock.
type ShardedPool struct {
	shards []Pool
	next   atomic.Uint32
}

var _ Pool = (*ShardedPool)(nil)

// NewShardedPool creates n pools with newPool, each capped at maxSize tokens.
func NewShardedPool(n int, constructor Constructor, maxSize int32, newPool func(Constructor, int32) (Pool, error)) (*ShardedPool, error) {
	if n < 1 {
		n = 1
	}

	sp := &ShardedPool{shards: make([]Pool, 0, n)}
	for range n {
		p, err := newPool(constructor, maxSize)
		if err != nil {
			sp.Close()
			return nil, err
		}
		sp.shards = append(sp.shards, p)
	}
	return sp, nil
}

// Shards returns the number of pools.
func (sp *ShardedPool) Shards() int { return len(sp.shards) }

// Acquire takes a token from the shards in round-robin order.
func (sp *ShardedPool) Acquire(ctx context.Context) (Resource, error) {
	i := int(sp.next.Add(1)-1) % len(sp.shards)
	return sp.shards[i].Acquire(ctx)
}

// AcquireFor prefers the shard owning key, typically the remote host, so a
// peer keeps hitting the same shard. When that shard is exhausted the other
// shards are tried in order; only when all of them are exhausted does it wait
// on the owning shard.
func (sp *ShardedPool) AcquireFor(ctx context.Context, key string) (Resource, error) {
	home := internal.Shard(key, len(sp.shards))

	for i := range sp.shards {
		shard := sp.shards[(home+i)%len(sp.shards)]
		res, err := shard.TryAcquire(ctx)
		if !errors.Is(err, ErrPoolExhausted) {
			return res, err
		}
	}
	return sp.shards[home].Acquire(ctx)
}

// TryAcquire takes a token from the first shard, in round-robin order, that
// has one available.
func (sp *ShardedPool) TryAcquire(ctx context.Context) (Resource, error) {
	start := int(sp.next.Add(1)-1) % len(sp.shards)

	for i := range sp.shards {
		res, err := sp.shards[(start+i)%len(sp.shards)].TryAcquire(ctx)
		if !errors.Is(err, ErrPoolExhausted) {
			return res, err
		}
	}
	return nil, ErrPoolExhausted
}

func (sp *ShardedPool) AcquireAllIdle() []Resource {
	var idle []Resource
	for _, p := range sp.shards {
		idle = append(idle, p.AcquireAllIdle()...)
	}
	return idle
}

// Stats returns the sum of the shard statistics.
func (sp *ShardedPool) Stats() PoolStats {
	var total PoolStats
	for _, p := range sp.shards {
		total = total.Add(p.Stats())
	}
	return total
}

func (sp *ShardedPool) Close() {
	for _, p := range sp.shards {
		p.Close()
	}
}
