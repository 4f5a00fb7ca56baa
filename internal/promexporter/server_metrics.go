package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/collector"
)

// ServerMetrics turns ServerStats snapshots into Prometheus metrics at
// scrape time, and counts breaker transitions as they happen.
type ServerMetrics struct {
	stats func() collector.ServerStats

	connections *prometheus.Desc
	activeConns *prometheus.Desc
	messages    *prometheus.Desc
	malformed   *prometheus.Desc
	handlerErrs *prometheus.Desc
	bytes       *prometheus.Desc
	peers       *prometheus.Desc

	poolTokens   *prometheus.Desc
	poolAcquires *prometheus.Desc
	poolWaits    *prometheus.Desc
	poolWaitTime *prometheus.Desc
	poolCreated  *prometheus.Desc
	poolErrors   *prometheus.Desc

	breakerTransitions *prometheus.CounterVec
}

// NewServerMetrics creates and registers the server metrics.
func NewServerMetrics(registry *prometheus.Registry, stats func() collector.ServerStats) *ServerMetrics {
	m := &ServerMetrics{
		stats: stats,

		connections: prometheus.NewDesc("collector_connections_total",
			"Connections by outcome", []string{"outcome"}, nil), // accepted, rejected, reaped
		activeConns: prometheus.NewDesc("collector_connections_active",
			"Connections currently served", nil, nil),
		messages: prometheus.NewDesc("collector_messages_total",
			"Messages decoded and dispatched", nil, nil),
		malformed: prometheus.NewDesc("collector_malformed_total",
			"Malformed messages and invalid frames", nil, nil),
		handlerErrs: prometheus.NewDesc("collector_handler_errors_total",
			"Handler calls that returned an error", nil, nil),
		bytes: prometheus.NewDesc("collector_bytes_total",
			"Bytes transferred", []string{"direction"}, nil), // in, out
		peers: prometheus.NewDesc("collector_breaker_peers",
			"Peers with a tracked circuit breaker", nil, nil),

		poolTokens: prometheus.NewDesc("collector_pool_tokens",
			"Token pool statistics", []string{"state"}, nil), // total, active, idle
		poolAcquires: prometheus.NewDesc("collector_pool_acquires_total",
			"Token acquire attempts", nil, nil),
		poolWaits: prometheus.NewDesc("collector_pool_acquire_waits_total",
			"Token acquires that had to wait", nil, nil),
		poolWaitTime: prometheus.NewDesc("collector_pool_acquire_wait_seconds_total",
			"Time spent waiting for a token", nil, nil),
		poolCreated: prometheus.NewDesc("collector_pool_tokens_created_total",
			"Tokens created", nil, nil),
		poolErrors: prometheus.NewDesc("collector_pool_acquire_errors_total",
			"Failed token acquires", nil, nil),

		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_breaker_transitions_total",
				Help: "Peer circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),
	}

	registry.MustRegister(m, m.breakerTransitions)
	return m
}

// RecordBreakerTransition counts a breaker state change.
func (m *ServerMetrics) RecordBreakerTransition(from, to string) {
	m.breakerTransitions.WithLabelValues(from, to).Inc()
}

func (m *ServerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connections
	ch <- m.activeConns
	ch <- m.messages
	ch <- m.malformed
	ch <- m.handlerErrs
	ch <- m.bytes
	ch <- m.peers
	ch <- m.poolTokens
	ch <- m.poolAcquires
	ch <- m.poolWaits
	ch <- m.poolWaitTime
	ch <- m.poolCreated
	ch <- m.poolErrors
}

func (m *ServerMetrics) Collect(ch chan<- prometheus.Metric) {
	s := m.stats()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(desc *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), labels...)
	}

	counter(m.connections, s.AcceptedConns, "accepted")
	counter(m.connections, s.RejectedConns, "rejected")
	counter(m.connections, s.ReapedConns, "reaped")
	gauge(m.activeConns, s.ActiveConns)
	counter(m.messages, s.Messages)
	counter(m.malformed, s.Malformed)
	counter(m.handlerErrs, s.HandlerErrors)
	counter(m.bytes, s.BytesIn, "in")
	counter(m.bytes, s.BytesOut, "out")
	gauge(m.peers, s.BreakerPeers)

	gauge(m.poolTokens, int64(s.Pool.TotalTokens), "total")
	gauge(m.poolTokens, int64(s.Pool.ActiveTokens), "active")
	gauge(m.poolTokens, int64(s.Pool.IdleTokens), "idle")
	counter(m.poolAcquires, s.Pool.AcquireCount)
	counter(m.poolWaits, s.Pool.AcquireWaitCount)
	ch <- prometheus.MustNewConstMetric(m.poolWaitTime, prometheus.CounterValue, float64(s.Pool.AcquireWaitTimeNs)/1e9)
	counter(m.poolCreated, s.Pool.CreatedTokens)
	counter(m.poolErrors, s.Pool.AcquireErrors)
}
