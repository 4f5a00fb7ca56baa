package token

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a token pool backed by puddle.
// This is the default pool implementation.
func NewPuddlePool(constructor Constructor, maxSize int32) (Pool, error) {
	p := &puddlePool{}

	pool, err := puddle.NewPool(&puddle.Config[*Token]{
		Constructor: func(ctx context.Context) (*Token, error) {
			t, err := constructor(ctx)
			if err == nil {
				p.created.Add(1)
			}
			return t, err
		},
		Destructor: func(t *Token) {
			p.destroyed.Add(1)
			t.Clear()
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

type puddlePool struct {
	pool      *puddle.Pool[*Token]
	created   atomic.Int64
	destroyed atomic.Int64
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrPoolClosed
		}
		return nil, err
	}
	return puddleResource{res}, nil
}

// TryAcquire creates a token synchronously when the pool has room, where
// puddle's own TryAcquire would start the creation in the background and
// report the pool as unavailable.
func (p *puddlePool) TryAcquire(ctx context.Context) (Resource, error) {
	if s := p.pool.Stat(); s.TotalResources() < s.MaxResources() {
		return p.Acquire(ctx)
	}

	res, err := p.pool.TryAcquire(ctx)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, ErrPoolClosed
		case errors.Is(err, puddle.ErrNotAvailable):
			return nil, ErrPoolExhausted
		}
		return nil, err
	}
	return puddleResource{res}, nil
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	idle := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(idle))
	for i, res := range idle {
		resources[i] = puddleResource{res}
	}
	return resources
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

// Stats maps the puddle statistics to PoolStats.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalTokens:       s.TotalResources(),
		IdleTokens:        s.IdleResources(),
		ActiveTokens:      s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedTokens:     uint64(p.created.Load()),
		DestroyedTokens:   uint64(p.destroyed.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}

type puddleResource struct {
	res *puddle.Resource[*Token]
}

func (r puddleResource) Value() *Token { return r.res.Value() }

func (r puddleResource) Release() {
	r.res.Value().Clear()
	r.res.Release()
}

func (r puddleResource) Destroy() { r.res.Destroy() }

func (r puddleResource) CreationTime() time.Time { return r.res.CreationTime() }

func (r puddleResource) IdleDuration() time.Duration { return r.res.IdleDuration() }
