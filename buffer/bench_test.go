package buffer

import "testing"

var benchChunk = []byte("source=host-1\r\n")

// Benchmark steady-state appends into a warm buffer
func BenchmarkAppend_Warm(b *testing.B) {
	buf := New(4096)

	for b.Loop() {
		if err := buf.Append(benchChunk, 0, len(benchChunk)); err != nil {
			b.Fatal(err)
		}
		buf.ConsumeAll()
	}
}

// Benchmark many small appends from an empty buffer, per growth policy
func BenchmarkAppend_Growth(b *testing.B) {
	policies := map[string]GrowthPolicy{
		"exact":    ExactFit,
		"doubling": Doubling,
	}

	for name, policy := range policies {
		b.Run(name, func(b *testing.B) {
			for b.Loop() {
				buf := New(0, WithGrowth(policy))
				for range 64 {
					_ = buf.Append(benchChunk, 0, len(benchChunk))
				}
			}
		})
	}
}

// Benchmark front consumption of a partially processed buffer
func BenchmarkConsume(b *testing.B) {
	buf := New(4096)

	for b.Loop() {
		for buf.Free() >= len(benchChunk) {
			_ = buf.Append(benchChunk, 0, len(benchChunk))
		}
		buf.Consume(len(benchChunk))
		buf.ConsumeAll()
	}
}

// Benchmark typed writes in network order
func BenchmarkWriteInt32(b *testing.B) {
	buf := New(4096)

	for b.Loop() {
		_ = buf.WriteInt32(42, true)
		buf.ConsumeAll()
	}
}
