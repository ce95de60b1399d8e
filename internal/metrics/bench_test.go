package metrics

import "testing"

// BenchmarkCollector_ConnectionLifecycle measures the counters one
// accept, exchange and teardown touches.
func BenchmarkCollector_ConnectionLifecycle(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.ConnectionOpened()
		c.BytesReceived(512)
		c.BytesSent(4096)
		c.BytesDrained(64)
		c.ConnectionClosed()
	}
}

// BenchmarkCollector_ParallelTeardown measures contention when many
// connections close at once.
func BenchmarkCollector_ParallelTeardown(b *testing.B) {
	c := New()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.BytesDrained(1)
			c.TeardownFailed()
		}
	})
}

func BenchmarkCollector_JSON(b *testing.B) {
	c := New()
	c.ConnectionOpened()
	c.AcceptFailed("accept fd=0: too many open files (retryable)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.JSON()
	}
}

// BenchmarkNilCollector covers listeners built without a collector.
func BenchmarkNilCollector(b *testing.B) {
	var c *Collector
	for i := 0; i < b.N; i++ {
		c.ConnectionOpened()
		c.BytesDrained(64)
		c.TeardownFailed()
	}
}
