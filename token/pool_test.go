package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/collector/internal/testutils"
)

var poolFactories = []struct {
	name    string
	newPool func(Constructor, int32) (Pool, error)
}{
	{"puddle", NewPuddlePool},
	{"channel", NewChannelPool},
}

func TestPool_AcquireRelease(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 2)
			require.NoError(t, err)
			defer pool.Close()

			res, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			tok := res.Value()
			assert.Equal(t, uint64(1), tok.ID())

			stats := pool.Stats()
			assert.Equal(t, int32(1), stats.TotalTokens)
			assert.Equal(t, int32(1), stats.ActiveTokens)
			assert.Equal(t, uint64(1), stats.CreatedTokens)

			res.Release()

			stats = pool.Stats()
			assert.Equal(t, int32(1), stats.IdleTokens)
			assert.Equal(t, int32(0), stats.ActiveTokens)

			again, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			assert.Same(t, tok, again.Value(), "the idle token is reused")
			again.Release()
		})
	}
}

func TestPool_ReleaseClearsToken(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 1)
			require.NoError(t, err)
			defer pool.Close()

			res, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			tok := res.Value()
			tok.Assign(testutils.NewConnectionMock())
			require.NoError(t, tok.ReceiveBuffer().Append([]byte("leftover"), 0, 8))
			require.NoError(t, tok.SendQueue().Enqueue([]byte("unsent")))

			res.Release()

			assert.False(t, tok.Assigned())
			assert.Equal(t, 0, tok.ReceiveBuffer().Len())
			assert.Equal(t, 0, tok.SendQueue().Len())
		})
	}
}

func TestPool_WaitsWhenFull(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 1)
			require.NoError(t, err)
			defer pool.Close()

			res, err := pool.Acquire(context.Background())
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = pool.Acquire(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				waited, err := pool.Acquire(context.Background())
				if assert.NoError(t, err) {
					waited.Release()
				}
			}()

			time.Sleep(10 * time.Millisecond)
			res.Release()
			wg.Wait()

			assert.Equal(t, uint64(1), pool.Stats().CreatedTokens)
		})
	}
}

func TestPool_Destroy(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 1)
			require.NoError(t, err)
			defer pool.Close()

			res, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			first := res.Value()
			res.Destroy()

			require.Eventually(t, func() bool {
				return pool.Stats().TotalTokens == 0
			}, time.Second, time.Millisecond)

			res, err = pool.Acquire(context.Background())
			require.NoError(t, err)
			assert.NotSame(t, first, res.Value())
			res.Release()
		})
	}
}

func TestPool_ConstructorError(t *testing.T) {
	boom := errors.New("boom")
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(func(context.Context) (*Token, error) { return nil, boom }, 1)
			require.NoError(t, err)
			defer pool.Close()

			_, err = pool.Acquire(context.Background())

			assert.ErrorIs(t, err, boom)
			assert.Eventually(t, func() bool {
				return pool.Stats().TotalTokens == 0
			}, time.Second, time.Millisecond)
		})
	}
}

func TestPool_Closed(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 1)
			require.NoError(t, err)

			pool.Close()

			_, err = pool.Acquire(context.Background())
			assert.ErrorIs(t, err, ErrPoolClosed)
		})
	}
}

func TestPool_AcquireAllIdle(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 4)
			require.NoError(t, err)
			defer pool.Close()

			require.NoError(t, Warm(context.Background(), pool, 3))

			idle := pool.AcquireAllIdle()
			assert.Len(t, idle, 3)
			assert.Equal(t, int32(0), pool.Stats().IdleTokens)

			for _, res := range idle {
				res.Release()
			}
		})
	}
}

func TestWarm(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 8)
			require.NoError(t, err)
			defer pool.Close()

			require.NoError(t, Warm(context.Background(), pool, 5))

			stats := pool.Stats()
			assert.Equal(t, int32(5), stats.TotalTokens)
			assert.Equal(t, int32(5), stats.IdleTokens)
			assert.Equal(t, int32(0), stats.ActiveTokens)
		})
	}
}

func TestNewConstructor_SequentialIDs(t *testing.T) {
	ctor := NewConstructor(DefaultConfig())

	for want := uint64(1); want <= 3; want++ {
		tok, err := ctor(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, tok.ID())
	}
}

func TestPool_Concurrent(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 4)
			require.NoError(t, err)
			defer pool.Close()

			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 50 {
						res, err := pool.Acquire(context.Background())
						if !assert.NoError(t, err) {
							return
						}
						tok := res.Value()
						tok.Assign(testutils.NewConnectionMock())
						tok.Touch()
						res.Release()
					}
				}()
			}
			wg.Wait()

			stats := pool.Stats()
			assert.LessOrEqual(t, stats.TotalTokens, int32(4))
			assert.Equal(t, int32(0), stats.ActiveTokens)
		})
	}
}

func TestPool_TryAcquire(t *testing.T) {
	for _, f := range poolFactories {
		t.Run(f.name, func(t *testing.T) {
			pool, err := f.newPool(NewConstructor(DefaultConfig()), 1)
			require.NoError(t, err)
			defer pool.Close()

			res, err := pool.TryAcquire(context.Background())
			require.NoError(t, err, "an empty pool with room creates a token")

			_, err = pool.TryAcquire(context.Background())
			assert.ErrorIs(t, err, ErrPoolExhausted)

			res.Release()

			again, err := pool.TryAcquire(context.Background())
			require.NoError(t, err)
			assert.Same(t, res.Value(), again.Value())
			again.Release()
		})
	}
}
