package collector

import (
	"context"
	"strconv"
	"testing"

	"github.com/pior/collector/wire"
)

// Benchmark one ping round trip over loopback
func BenchmarkServer_RoundTrip(b *testing.B) {
	for _, framing := range []Framing{FramingPacket, FramingLine} {
		b.Run(string(framing), func(b *testing.B) {
			cfg := testConfig()
			cfg.Framing = framing
			srv, err := NewServer(cfg, echoMux())
			if err != nil {
				b.Fatal(err)
			}
			addr := serveBench(b, srv, cfg.Addr)

			ccfg := DefaultClientConfig()
			ccfg.Framing = framing
			c, err := Dial(context.Background(), addr, ccfg)
			if err != nil {
				b.Fatal(err)
			}
			defer c.Close()

			msg := wire.NewMessage(wire.CmdPing, wire.KeySeq, "1")
			ctx := context.Background()

			for b.Loop() {
				if _, err := c.Do(ctx, msg); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark pipelined batches, reported per message
func BenchmarkServer_Pipelined(b *testing.B) {
	srv, err := NewServer(testConfig(), echoMux())
	if err != nil {
		b.Fatal(err)
	}
	addr := serveBench(b, srv, testConfig().Addr)

	c, err := Dial(context.Background(), addr, DefaultClientConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	batch := make([]wire.Message, 64)
	for i := range batch {
		batch[i] = wire.NewMessage(wire.CmdPing, wire.KeySeq, strconv.Itoa(i), "source", "bench")
	}
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.Do(ctx, batch...); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(b.N*len(batch))/b.Elapsed().Seconds(), "msgs/s")
}

func serveBench(b *testing.B, srv *Server, addr string) string {
	b.Helper()

	lc := listenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		b.Fatal(err)
	}
	go func() { _ = srv.Serve(context.Background(), ln) }()
	b.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return ln.Addr().String()
}
