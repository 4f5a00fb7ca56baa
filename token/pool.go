package token

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("token: pool closed")

	// ErrPoolExhausted is returned by TryAcquire when every token is in use.
	ErrPoolExhausted = errors.New("token: pool exhausted")
)

// Pool hands out tokens to connection handlers.
//
// A token acquired from the pool is owned by the caller until Release or
// Destroy. Release clears the token, so the next owner always gets empty
// buffers and no connection.
type Pool interface {
	// Acquire returns an idle token, creates one if the pool is below its
	// maximum size, or waits until one is released or ctx is done.
	Acquire(ctx context.Context) (Resource, error)

	// TryAcquire is Acquire without waiting: it returns ErrPoolExhausted
	// when no token is idle and the pool is at its maximum size.
	TryAcquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires every idle token without creating or waiting.
	AcquireAllIdle() []Resource

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats

	// Close destroys idle tokens and rejects further acquires.
	// Tokens in use are destroyed when released.
	Close()
}

// Resource is a token checked out from a Pool.
type Resource interface {
	Value() *Token
	Release()
	Destroy()
	CreationTime() time.Time
	IdleDuration() time.Duration
}

// Constructor creates a token for a pool.
type Constructor func(ctx context.Context) (*Token, error)

// NewConstructor returns a Constructor creating tokens from config, with ids
// starting at 1.
func NewConstructor(config Config) Constructor {
	var seq atomic.Uint64
	return func(ctx context.Context) (*Token, error) {
		return New(seq.Add(1), config), nil
	}
}

// Warm makes sure at least n tokens exist in the pool, creating them up front
// so the first connections do not pay for buffer allocation. n must not
// exceed the pool maximum size, or Warm blocks until ctx is done.
func Warm(ctx context.Context, pool Pool, n int) error {
	resources := make([]Resource, 0, n)
	defer func() {
		for _, res := range resources {
			res.Release()
		}
	}()

	for range n {
		res, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		resources = append(resources, res)
	}
	return nil
}
