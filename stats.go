package collector

import (
	"sync/atomic"

	"github.com/pior/collector/token"
)

// ServerStats is a snapshot of the server counters.
//
// For Prometheus, ActiveConns and BreakerPeers are gauges, the rest are
// counters.
type ServerStats struct {
	AcceptedConns uint64 // Connections accepted and served
	RejectedConns uint64 // Connections refused by a peer breaker or a full pool
	ReapedConns   uint64 // Connections closed by the idle reaper
	Messages      uint64 // Messages decoded and dispatched
	Malformed     uint64 // Messages the decoder rejected, and invalid frames
	HandlerErrors uint64 // Handler calls that returned an error
	BytesIn       uint64 // Bytes read from connections
	BytesOut      uint64 // Bytes written to connections

	ActiveConns  int64 // Connections currently served
	BreakerPeers int64 // Peers with a tracked circuit breaker

	Pool token.PoolStats
}

type statsCollector struct {
	accepted      atomic.Uint64
	rejected      atomic.Uint64
	reaped        atomic.Uint64
	messages      atomic.Uint64
	malformed     atomic.Uint64
	handlerErrors atomic.Uint64
	bytesIn       atomic.Uint64
	bytesOut      atomic.Uint64
	active        atomic.Int64
}

func (c *statsCollector) snapshot() ServerStats {
	return ServerStats{
		AcceptedConns: c.accepted.Load(),
		RejectedConns: c.rejected.Load(),
		ReapedConns:   c.reaped.Load(),
		Messages:      c.messages.Load(),
		Malformed:     c.malformed.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		BytesIn:       c.bytesIn.Load(),
		BytesOut:      c.bytesOut.Load(),
		ActiveConns:   c.active.Load(),
	}
}
