package report

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/collector"
	"github.com/pior/collector/wire"
)

func serve(t *testing.T, h collector.Handler) *collector.ClientConn {
	t.Helper()

	cfg := collector.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Pool.MaxSize = 4
	cfg.Breaker.Enabled = false

	srv, err := collector.NewServer(cfg, h)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	})

	c, err := collector.Dial(context.Background(), ln.Addr().String(), collector.DefaultClientConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func do(t *testing.T, c *collector.ClientConn, msgs ...wire.Message) []wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	replies, err := c.Do(ctx, msgs...)
	require.NoError(t, err)
	require.Len(t, replies, len(msgs))
	return replies
}

func code(m wire.Message) string {
	for _, f := range m.Fields {
		if f.Name == wire.KeyCode {
			return f.Value
		}
	}
	return ""
}

func TestAggregator_Report(t *testing.T) {
	agg := NewAggregator()
	c := serve(t, agg)

	replies := do(t, c,
		wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", wire.KeySeq, "1", "cpu", "0.5", "rss", "100"),
		wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", wire.KeySeq, "2", "cpu", "1.5", "rss", "300"),
		wire.NewMessage(wire.CmdReport, wire.KeySource, "web-2", "cpu", "-2"),
	)

	assert.Equal(t, wire.NewMessage(wire.CmdAck, wire.KeyCode, "0", wire.KeySeq, "1"), replies[0])
	assert.Equal(t, wire.NewMessage(wire.CmdAck, wire.KeyCode, "0", wire.KeySeq, "2"), replies[1])
	assert.Equal(t, wire.CmdAck, replies[2].Command)

	assert.Equal(t, []string{"web-1", "web-2"}, agg.Sources())
	assert.Equal(t, uint64(2), agg.Reports("web-1"))
	assert.Equal(t, uint64(0), agg.Reports("missing"))

	snap := agg.Snapshot("web-1")
	assert.Equal(t, Summary{Count: 2, Sum: 2, Min: 0.5, Max: 1.5, Last: 1.5}, snap["cpu"])
	assert.Equal(t, Summary{Count: 2, Sum: 400, Min: 100, Max: 300, Last: 300}, snap["rss"])
	assert.InDelta(t, 200.0, snap["rss"].Mean(), 1e-9)

	assert.Equal(t, Summary{Count: 1, Sum: -2, Min: -2, Max: -2, Last: -2}, agg.Snapshot("web-2")["cpu"])
	assert.Nil(t, agg.Snapshot("missing"))
}

func TestAggregator_Rejected(t *testing.T) {
	tests := []struct {
		name string
		msg  wire.Message
	}{
		{"missing source", wire.NewMessage(wire.CmdReport, "cpu", "1")},
		{"empty source", wire.NewMessage(wire.CmdReport, wire.KeySource, "", "cpu", "1")},
		{"not a number", wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", "cpu", "high")},
		{"repeated field, second invalid", wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", "cpu", "1", "cpu", "abc")},
		{"invalid after valid fields", wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", "rss", "10", "cpu", "1", "load", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			c := serve(t, agg)

			replies := do(t, c, tt.msg)
			assert.Equal(t, wire.CmdError, replies[0].Command)
			assert.Equal(t, "3", code(replies[0]))
			assert.Empty(t, agg.Sources())

			// The connection survives a rejected report.
			replies = do(t, c, wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", "cpu", "1"))
			assert.Equal(t, "0", code(replies[0]))
		})
	}
}

func TestAggregator_RepeatedFields(t *testing.T) {
	agg := NewAggregator()
	c := serve(t, agg)

	replies := do(t, c,
		wire.NewMessage(wire.CmdReport, wire.KeySource, "web-1", "cpu", "1", "cpu", " 3 ", "rss", "7"),
	)
	assert.Equal(t, "0", code(replies[0]))

	snap := agg.Snapshot("web-1")
	assert.Equal(t, Summary{Count: 2, Sum: 4, Min: 1, Max: 3, Last: 3}, snap["cpu"])
	assert.Equal(t, Summary{Count: 1, Sum: 7, Min: 7, Max: 7, Last: 7}, snap["rss"])
	assert.Equal(t, uint64(1), agg.Reports("web-1"))
}

func TestAggregator_Reset(t *testing.T) {
	agg := NewAggregator()
	agg.record("a", []observation{{"x", 1}})
	require.Len(t, agg.Sources(), 1)

	agg.Reset()
	assert.Empty(t, agg.Sources())
}

func TestSummary_Mean(t *testing.T) {
	assert.Zero(t, Summary{}.Mean())
	assert.Equal(t, 2.5, Summary{Count: 2, Sum: 5}.Mean())
}

func TestAggregator_Collect(t *testing.T) {
	agg := NewAggregator()
	agg.record("web-1", []observation{{"cpu", 0.5}})
	agg.record("web-1", []observation{{"cpu", 1.5}})

	expected := `
# HELP collector_report_field_count Number of reported values
# TYPE collector_report_field_count counter
collector_report_field_count{field="cpu",source="web-1"} 2
# HELP collector_report_field_last Last reported value
# TYPE collector_report_field_last gauge
collector_report_field_last{field="cpu",source="web-1"} 1.5
# HELP collector_report_field_sum Sum of the reported values
# TYPE collector_report_field_sum counter
collector_report_field_sum{field="cpu",source="web-1"} 2
# HELP collector_reports_total Report messages accepted
# TYPE collector_reports_total counter
collector_reports_total{source="web-1"} 2
`
	require.NoError(t, testutil.CollectAndCompare(agg, strings.NewReader(expected)))
}
