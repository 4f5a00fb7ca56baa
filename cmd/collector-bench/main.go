package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/collector"
	"github.com/pior/collector/wire"
)

type Workload string

const (
	Ping     Workload = "ping"
	Report   Workload = "report"
	Pipeline Workload = "pipeline"
	All      Workload = "all"
)

type BenchmarkResult struct {
	Workload     Workload
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

type benchConfig struct {
	addr        string
	client      collector.ClientConfig
	duration    time.Duration
	concurrency int
	batch       int
	fields      int
}

func main() {
	var (
		workload    = flag.String("workload", "all", "Workload: ping, report, pipeline, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration of each benchmark")
		concurrency = flag.Int("concurrency", 4, "Number of connections, one worker each")
		addr        = flag.String("addr", "localhost:9300", "Collector address")
		framing     = flag.String("framing", "packet", "Framing: packet or line")
		batch       = flag.Int("batch", 16, "Messages per write for the pipeline workload")
		fields      = flag.Int("fields", 8, "Numeric fields per report")
	)
	flag.Parse()

	cfg := benchConfig{
		addr:        *addr,
		client:      collector.DefaultClientConfig(),
		duration:    *duration,
		concurrency: max(*concurrency, 1),
		batch:       max(*batch, 1),
		fields:      max(*fields, 1),
	}
	cfg.client.Framing = collector.Framing(*framing)

	fmt.Printf("Collector Benchmark Tool\n")
	fmt.Printf("========================\n")
	fmt.Printf("Workload: %s\n", *workload)
	fmt.Printf("Duration: %v\n", cfg.duration)
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Address: %s\n", cfg.addr)
	fmt.Printf("Framing: %s\n", cfg.client.Framing)
	fmt.Println()

	fmt.Print("Testing connection...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	conn, err := collector.Dial(ctx, cfg.addr, cfg.client)
	if err == nil {
		err = conn.Ping(ctx)
		_ = conn.Close()
	}
	cancel()
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure the collector is running on %s\n", cfg.addr)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	if Workload(*workload) == All {
		for _, w := range []Workload{Ping, Report, Pipeline} {
			fmt.Printf("\n--- Running %s benchmark ---\n", w)
			printResult(run(cfg, w))
			time.Sleep(500 * time.Millisecond)
		}
		return
	}
	printResult(run(cfg, Workload(*workload)))
}

// batchFunc builds the messages a worker sends in one round trip.
type batchFunc func(worker, round int) []wire.Message

func run(cfg benchConfig, w Workload) *BenchmarkResult {
	var build batchFunc
	switch w {
	case Ping:
		build = func(_, round int) []wire.Message {
			return []wire.Message{wire.NewMessage(wire.CmdPing, wire.KeySeq, strconv.Itoa(round))}
		}
	case Report:
		build = func(worker, round int) []wire.Message {
			return []wire.Message{reportMessage(worker, round, cfg.fields)}
		}
	case Pipeline:
		build = func(worker, round int) []wire.Message {
			msgs := make([]wire.Message, cfg.batch)
			for i := range msgs {
				msgs[i] = reportMessage(worker, round*cfg.batch+i, cfg.fields)
			}
			return msgs
		}
	default:
		return &BenchmarkResult{
			Workload:     w,
			ErrorMessage: fmt.Sprintf("Unknown workload: %s", w),
		}
	}
	return runWorkers(cfg, w, build)
}

func reportMessage(worker, seq, fields int) wire.Message {
	pairs := make([]string, 0, 4+2*fields)
	pairs = append(pairs, wire.KeySource, "bench-"+strconv.Itoa(worker), wire.KeySeq, strconv.Itoa(seq))
	for i := range fields {
		pairs = append(pairs, "metric"+strconv.Itoa(i), strconv.Itoa(seq%1000))
	}
	return wire.NewMessage(wire.CmdReport, pairs...)
}

func runWorkers(cfg benchConfig, w Workload, build batchFunc) *BenchmarkResult {
	result := &BenchmarkResult{Workload: w, Correctness: true}
	var totalOps, successes, failures, rounds, totalLatency atomic.Int64
	var mu sync.Mutex

	fail := func(msg string) {
		mu.Lock()
		result.Correctness = false
		result.ErrorMessage = msg
		mu.Unlock()
	}

	startTime := time.Now()
	var wg sync.WaitGroup

	for worker := range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx := context.Background()
			conn, err := collector.Dial(ctx, cfg.addr, cfg.client)
			if err != nil {
				fail(fmt.Sprintf("worker %d: dial: %v", worker, err))
				return
			}
			defer conn.Close()

			for round := 0; time.Since(startTime) < cfg.duration; round++ {
				msgs := build(worker, round)

				opStart := time.Now()
				opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				replies, err := conn.Do(opCtx, msgs...)
				cancel()
				latency := time.Since(opStart)

				totalOps.Add(int64(len(msgs)))
				rounds.Add(1)
				totalLatency.Add(int64(latency))

				if err != nil {
					failures.Add(int64(len(msgs)))
					log.Printf("worker %d: %v", worker, err)
					return
				}

				for i, reply := range replies {
					if ok, reason := check(msgs[i], reply); ok {
						successes.Add(1)
					} else {
						failures.Add(1)
						fail(reason)
					}
				}
			}
		}()
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps.Load()
	result.Successes = successes.Load()
	result.Failures = failures.Load()

	if n := rounds.Load(); n > 0 {
		result.AvgLatency = time.Duration(totalLatency.Load() / n)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}
	return result
}

// check verifies a reply echoes the request sequence number.
func check(req, reply wire.Message) (bool, string) {
	want := wire.CmdAck
	if req.Command == wire.CmdPing {
		want = wire.CmdPong
	}
	if reply.Command != want {
		return false, fmt.Sprintf("expected %s, got %s", want, reply.Command)
	}
	if value(reply, wire.KeySeq) != value(req, wire.KeySeq) {
		return false, "sequence mismatch"
	}
	return true, ""
}

func value(m wire.Message, name string) string {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Workload: %s\n", result.Workload)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Messages: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Messages/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Round Trip: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
