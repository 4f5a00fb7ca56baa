package token

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a token pool.
//
// For Prometheus, expose TotalTokens, IdleTokens and ActiveTokens as gauges
// and the rest as counters.
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedTokens     uint64 // Total tokens created
	DestroyedTokens   uint64 // Total tokens destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalTokens  int32 // Tokens owned by the pool (active + idle)
	IdleTokens   int32 // Tokens available for the next connection
	ActiveTokens int32 // Tokens bound to a handler
	_            int32
}

// Add returns the sum of two snapshots.
func (s PoolStats) Add(o PoolStats) PoolStats {
	return PoolStats{
		AcquireCount:      s.AcquireCount + o.AcquireCount,
		AcquireWaitCount:  s.AcquireWaitCount + o.AcquireWaitCount,
		CreatedTokens:     s.CreatedTokens + o.CreatedTokens,
		DestroyedTokens:   s.DestroyedTokens + o.DestroyedTokens,
		AcquireErrors:     s.AcquireErrors + o.AcquireErrors,
		AcquireWaitTimeNs: s.AcquireWaitTimeNs + o.AcquireWaitTimeNs,
		TotalTokens:       s.TotalTokens + o.TotalTokens,
		IdleTokens:        s.IdleTokens + o.IdleTokens,
		ActiveTokens:      s.ActiveTokens + o.ActiveTokens,
	}
}

// statsCollector is updated by the pools with atomic operations.
type statsCollector struct {
	stats PoolStats
}

func (c *statsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *statsCollector) recordAcquireWait(d time.Duration) {
	atomic.AddUint64(&c.stats.AcquireWaitCount, 1)
	atomic.AddUint64(&c.stats.AcquireWaitTimeNs, uint64(d.Nanoseconds()))
}

func (c *statsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

// recordCreate counts a new token handed straight to its first owner.
func (c *statsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedTokens, 1)
	atomic.AddInt32(&c.stats.TotalTokens, 1)
	atomic.AddInt32(&c.stats.ActiveTokens, 1)
}

func (c *statsCollector) recordDestroyActive() {
	atomic.AddUint64(&c.stats.DestroyedTokens, 1)
	atomic.AddInt32(&c.stats.TotalTokens, -1)
	atomic.AddInt32(&c.stats.ActiveTokens, -1)
}

func (c *statsCollector) recordDestroyIdle() {
	atomic.AddUint64(&c.stats.DestroyedTokens, 1)
	atomic.AddInt32(&c.stats.TotalTokens, -1)
	atomic.AddInt32(&c.stats.IdleTokens, -1)
}

func (c *statsCollector) recordAcquireFromIdle() {
	atomic.AddInt32(&c.stats.IdleTokens, -1)
	atomic.AddInt32(&c.stats.ActiveTokens, 1)
}

func (c *statsCollector) recordRelease() {
	atomic.AddInt32(&c.stats.IdleTokens, 1)
	atomic.AddInt32(&c.stats.ActiveTokens, -1)
}

func (c *statsCollector) snapshot() PoolStats {
	return PoolStats{
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedTokens:     atomic.LoadUint64(&c.stats.CreatedTokens),
		DestroyedTokens:   atomic.LoadUint64(&c.stats.DestroyedTokens),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
		TotalTokens:       atomic.LoadInt32(&c.stats.TotalTokens),
		IdleTokens:        atomic.LoadInt32(&c.stats.IdleTokens),
		ActiveTokens:      atomic.LoadInt32(&c.stats.ActiveTokens),
	}
}
