// Package report aggregates the numeric fields of report messages per
// source.
package report

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/collector"
	"github.com/pior/collector/wire"
)

// Summary aggregates the values seen for one field of one source.
type Summary struct {
	Count uint64
	Sum   float64
	Min   float64
	Max   float64
	Last  float64
}

func (s *Summary) observe(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
	s.Last = v
}

// Mean returns Sum/Count, zero when nothing was observed.
func (s Summary) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

type source struct {
	reports uint64
	fields  map[string]*Summary
}

// Aggregator is a collector.Handler for report messages. Every field other
// than source and seq must hold a number.
type Aggregator struct {
	mu      sync.RWMutex
	sources map[string]*source

	reportsDesc *prometheus.Desc
	sumDesc     *prometheus.Desc
	countDesc   *prometheus.Desc
	lastDesc    *prometheus.Desc
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		sources: make(map[string]*source),

		reportsDesc: prometheus.NewDesc("collector_reports_total",
			"Report messages accepted", []string{"source"}, nil),
		sumDesc: prometheus.NewDesc("collector_report_field_sum",
			"Sum of the reported values", []string{"source", "field"}, nil),
		countDesc: prometheus.NewDesc("collector_report_field_count",
			"Number of reported values", []string{"source", "field"}, nil),
		lastDesc: prometheus.NewDesc("collector_report_field_last",
			"Last reported value", []string{"source", "field"}, nil),
	}
}

// ServeMessage records a report and replies ack with code 0, echoing seq.
// Repeated fields are all observed, in order. Nothing is recorded when any
// value does not parse.
func (a *Aggregator) ServeMessage(_ context.Context, req *collector.Request) error {
	msg := req.Message

	name, ok := msg.Value(wire.KeySource)
	if !ok || name == "" {
		return &wire.FieldError{Name: wire.KeySource, Err: wire.ErrFieldNotFound}
	}

	values := make([]observation, 0, msg.Len())
	for _, f := range msg.Fields() {
		if f.Name == wire.KeySource || f.Name == wire.KeySeq {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
		if err != nil {
			return &wire.FieldError{Name: f.Name, Value: f.Value, Err: numError(err)}
		}
		values = append(values, observation{field: f.Name, value: v})
	}

	a.record(name, values)

	seq, _ := msg.Value(wire.KeySeq)
	return req.Reply(wire.CmdAck, wire.KeyCode, strconv.Itoa(wire.CodeOK), wire.KeySeq, seq)
}

// observation is one numeric field of a report, in message order.
type observation struct {
	field string
	value float64
}

// numError strips the *strconv.NumError wrapper; FieldError carries the input.
func numError(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}

func (a *Aggregator) record(name string, values []observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src, ok := a.sources[name]
	if !ok {
		src = &source{fields: make(map[string]*Summary)}
		a.sources[name] = src
	}
	src.reports++

	for _, o := range values {
		sum, ok := src.fields[o.field]
		if !ok {
			sum = &Summary{}
			src.fields[o.field] = sum
		}
		sum.observe(o.value)
	}
}

// Sources returns the known sources, sorted.
func (a *Aggregator) Sources() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.sources))
}

// Reports returns the number of reports accepted from name.
func (a *Aggregator) Reports(name string) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if src, ok := a.sources[name]; ok {
		return src.reports
	}
	return 0
}

// Snapshot returns a copy of the field summaries of name.
func (a *Aggregator) Snapshot(name string) map[string]Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	src, ok := a.sources[name]
	if !ok {
		return nil
	}
	out := make(map[string]Summary, len(src.fields))
	for field, sum := range src.fields {
		out[field] = *sum
	}
	return out
}

// Reset forgets every source.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	clear(a.sources)
	a.mu.Unlock()
}

func (a *Aggregator) Describe(ch chan<- *prometheus.Desc) {
	ch <- a.reportsDesc
	ch <- a.sumDesc
	ch <- a.countDesc
	ch <- a.lastDesc
}

func (a *Aggregator) Collect(ch chan<- prometheus.Metric) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for name, src := range a.sources {
		ch <- prometheus.MustNewConstMetric(a.reportsDesc, prometheus.CounterValue, float64(src.reports), name)
		for field, sum := range src.fields {
			ch <- prometheus.MustNewConstMetric(a.sumDesc, prometheus.CounterValue, sum.Sum, name, field)
			ch <- prometheus.MustNewConstMetric(a.countDesc, prometheus.CounterValue, float64(sum.Count), name, field)
			ch <- prometheus.MustNewConstMetric(a.lastDesc, prometheus.GaugeValue, sum.Last, name, field)
		}
	}
}
