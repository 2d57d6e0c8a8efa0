package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/keirav/manifold/internal/core/ports"
)

const latencySampleSize = 100

// tierMetrics tracks one tier's counters plus a bounded ring of operation
// latencies.
type tierMetrics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	puts    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	mu        sync.Mutex
	latencies [latencySampleSize]float64 // microseconds
	latIdx    int
	latCount  int
}

func (m *tierMetrics) observe(start time.Time) {
	elapsed := float64(time.Since(start).Microseconds())
	m.mu.Lock()
	m.latencies[m.latIdx] = elapsed
	m.latIdx = (m.latIdx + 1) % latencySampleSize
	if m.latCount < latencySampleSize {
		m.latCount++
	}
	m.mu.Unlock()
}

func (m *tierMetrics) avgLatencyUs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latCount == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < m.latCount; i++ {
		sum += m.latencies[i]
	}
	return sum / float64(m.latCount)
}

func (m *tierMetrics) snapshot() ports.CacheTierMetrics {
	return ports.CacheTierMetrics{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Puts:         m.puts.Load(),
		Deletes:      m.deletes.Load(),
		Errors:       m.errors.Load(),
		AvgLatencyUs: m.avgLatencyUs(),
	}
}
