package balancer

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
)

// modelEntry holds one model's live metrics. Hot counters are atomics; the
// latency ring and error histogram sit behind a small mutex since they are
// compound updates.
type modelEntry struct {
	name         string
	capabilities map[string]string

	successCount  atomic.Int64
	errorCount    atomic.Int64
	totalRequests atomic.Int64
	concurrent    atomic.Int64
	totalTokens   atomic.Int64
	lastSuccess   atomic.Int64 // unix nanos
	lastError     atomic.Int64

	baseWeight float64
	dynWeight  atomic.Uint64 // math.Float64bits

	mu         sync.Mutex
	latencies  []float64 // bounded ring, milliseconds
	latIdx     int
	latCount   int
	errorTypes map[string]int64
	lastHealth domain.ModelHealth
}

func newModelEntry(name string, weight float64, capabilities map[string]string, latencyWindow int) *modelEntry {
	if latencyWindow < 1 {
		latencyWindow = 100
	}
	if weight <= 0 {
		weight = 1.0
	}
	e := &modelEntry{
		name:         name,
		capabilities: capabilities,
		baseWeight:   weight,
		latencies:    make([]float64, latencyWindow),
		errorTypes:   make(map[string]int64),
		lastHealth:   domain.HealthUnknown,
	}
	e.setDynamicWeight(weight)
	return e
}

func (e *modelEntry) recordSuccess(latency time.Duration, tokens int) {
	e.successCount.Add(1)
	e.totalRequests.Add(1)
	e.totalTokens.Add(int64(tokens))
	e.lastSuccess.Store(time.Now().UnixNano())

	e.mu.Lock()
	e.latencies[e.latIdx] = float64(latency.Milliseconds())
	e.latIdx = (e.latIdx + 1) % len(e.latencies)
	if e.latCount < len(e.latencies) {
		e.latCount++
	}
	e.mu.Unlock()
}

func (e *modelEntry) recordError(errorType string) {
	e.errorCount.Add(1)
	e.totalRequests.Add(1)
	e.lastError.Store(time.Now().UnixNano())

	e.mu.Lock()
	e.errorTypes[errorType]++
	e.mu.Unlock()
}

// avgLatencyMs averages the bounded ring, i.e. roughly the last N
// successful calls rather than process lifetime.
func (e *modelEntry) avgLatencyMs() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latCount == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < e.latCount; i++ {
		sum += e.latencies[i]
	}
	return sum / float64(e.latCount)
}

// successRate is optimistic for models with no traffic yet so new
// registrations are not starved before their first request.
func (e *modelEntry) successRate() float64 {
	succ := e.successCount.Load()
	errs := e.errorCount.Load()
	total := succ + errs
	if total == 0 {
		return 1.0
	}
	return float64(succ) / float64(total)
}

func (e *modelEntry) errorRate() float64 {
	return 1.0 - e.successRate()
}

// health classifies the model from its current error rate.
func (e *modelEntry) health(degradedThreshold, unhealthyThreshold float64) domain.ModelHealth {
	if e.totalRequests.Load() == 0 {
		return domain.HealthUnknown
	}
	rate := e.errorRate()
	switch {
	case rate >= unhealthyThreshold:
		return domain.HealthUnhealthy
	case rate >= degradedThreshold:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

func (e *modelEntry) dynamicWeight() float64 {
	return math.Float64frombits(e.dynWeight.Load())
}

func (e *modelEntry) setDynamicWeight(w float64) {
	e.dynWeight.Store(math.Float64bits(w))
}

func (e *modelEntry) matchesCapabilities(required map[string]string) bool {
	for k, v := range required {
		if e.capabilities[k] != v {
			return false
		}
	}
	return true
}

func (e *modelEntry) snapshot(degradedThreshold, unhealthyThreshold float64) domain.ModelSnapshot {
	e.mu.Lock()
	errorTypes := make(map[string]int64, len(e.errorTypes))
	for k, v := range e.errorTypes {
		errorTypes[k] = v
	}
	e.mu.Unlock()

	var lastSuccess, lastError time.Time
	if ns := e.lastSuccess.Load(); ns > 0 {
		lastSuccess = time.Unix(0, ns)
	}
	if ns := e.lastError.Load(); ns > 0 {
		lastError = time.Unix(0, ns)
	}

	return domain.ModelSnapshot{
		Name:               e.name,
		Health:             e.health(degradedThreshold, unhealthyThreshold),
		SuccessCount:       e.successCount.Load(),
		ErrorCount:         e.errorCount.Load(),
		TotalRequests:      e.totalRequests.Load(),
		ConcurrentRequests: e.concurrent.Load(),
		TotalTokens:        e.totalTokens.Load(),
		AvgLatencyMs:       e.avgLatencyMs(),
		SuccessRate:        e.successRate(),
		BaseWeight:         e.baseWeight,
		DynamicWeight:      e.dynamicWeight(),
		LastSuccess:        lastSuccess,
		LastError:          lastError,
		ErrorTypes:         errorTypes,
		Capabilities:       e.capabilities,
	}
}
