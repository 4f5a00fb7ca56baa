// coarsetime provides a coarse time implementation to reduce the overhead of frequent time.Now() calls.
// It updates the current time at a fixed interval (50ms) in a separate goroutine.
//
// Connection tokens are touched on every received chunk, so their activity
// timestamps come from here rather than from time.Now.

package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

// Resolution is the maximum lag of Now behind the wall clock.
const Resolution = tick

var now atomic.Value

func init() {
	now.Store(time.Now())

	tick := time.NewTicker(tick)
	go func() {
		for range tick.C {
			now.Store(time.Now())
		}
	}()
}

func Now() time.Time {
	return now.Load().(time.Time)
}

// Since is time.Since against the coarse clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
