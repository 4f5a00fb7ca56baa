package token

import (
	"context"
	"sync"
	"time"

	"github.com/pior/collector/internal/coarsetime"
)

// NewChannelPool creates a token pool built on a buffered channel.
// It allocates less than the puddle pool on the acquire path.
func NewChannelPool(constructor Constructor, maxSize int32) (Pool, error) {
	return &channelPool{
		constructor: constructor,
		maxSize:     maxSize,
		idle:        make(chan *channelResource, maxSize),
	}, nil
}

type channelResource struct {
	token        *Token
	pool         *channelPool
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Token { return r.token }

func (r *channelResource) Release() {
	r.token.Clear()
	r.lastUsedTime = coarsetime.Now()
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	r.token.Clear()
	r.pool.remove()
	r.pool.stats.recordDestroyActive()
}

func (r *channelResource) CreationTime() time.Time { return r.creationTime }

func (r *channelResource) IdleDuration() time.Duration { return coarsetime.Since(r.lastUsedTime) }

type channelPool struct {
	constructor Constructor
	maxSize     int32

	mu     sync.Mutex
	idle   chan *channelResource
	size   int32
	closed bool

	stats statsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	res, err := p.tryAcquire(ctx)
	if err != ErrPoolExhausted {
		return res, err
	}

	waitStart := time.Now()
	select {
	case res, ok := <-p.idle:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireWait(time.Since(waitStart))
		p.stats.recordAcquireFromIdle()
		return res, nil
	case <-ctx.Done():
		p.stats.recordAcquireError()
		return nil, ctx.Err()
	}
}

// TryAcquire counts as an acquire only when it does not find the pool
// exhausted.
func (p *channelPool) TryAcquire(ctx context.Context) (Resource, error) {
	res, err := p.tryAcquire(ctx)
	if err != ErrPoolExhausted {
		p.stats.recordAcquire()
	}
	return res, err
}

func (p *channelPool) tryAcquire(ctx context.Context) (Resource, error) {
	select {
	case res, ok := <-p.idle:
		if ok {
			p.stats.recordAcquireFromIdle()
			return res, nil
		}
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	if p.size >= p.maxSize {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.size++
	p.mu.Unlock()

	t, err := p.constructor(ctx)
	if err != nil {
		p.remove()
		p.stats.recordAcquireError()
		return nil, err
	}
	p.stats.recordCreate()

	now := coarsetime.Now()
	return &channelResource{
		token:        t,
		pool:         p,
		creationTime: now,
		lastUsedTime: now,
	}, nil
}

func (p *channelPool) put(res *channelResource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.size--
		p.stats.recordDestroyActive()
		return
	}

	// The channel holds maxSize entries, so this never blocks while the
	// size accounting is right.
	select {
	case p.idle <- res:
		p.stats.recordRelease()
	default:
		p.size--
		p.stats.recordDestroyActive()
	}
}

func (p *channelPool) remove() {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource
	for {
		select {
		case res, ok := <-p.idle:
			if !ok {
				return idle
			}
			p.stats.recordAcquireFromIdle()
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	for res := range p.idle {
		res.token.Clear()
		p.remove()
		p.stats.recordDestroyIdle()
	}
}

func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
