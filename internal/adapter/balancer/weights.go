package balancer

import "time"

const (
	weightPerformanceBlend = 0.7
	weightBaseBlend        = 0.3
	weightFloor            = 0.1
)

// maybeUpdateWeights recomputes dynamic weights at most once per
// WeightUpdateInterval. The CAS keeps concurrent selectors from doing the
// sweep twice.
func (lb *LoadBalancer) maybeUpdateWeights() {
	now := time.Now().UnixNano()
	last := lb.lastWeightUpdate.Load()
	if last != 0 && now-last < lb.cfg.WeightUpdateInterval.Nanoseconds() {
		return
	}
	if !lb.lastWeightUpdate.CompareAndSwap(last, now) {
		return
	}

	lb.models.Range(func(name string, e *modelEntry) bool {
		w := blendedWeight(e)
		e.setDynamicWeight(w)
		if lb.log != nil {
			lb.log.Debug("updated dynamic weight", "model", name, "weight", w)
		}
		return true
	})
}

// blendedWeight mixes live performance with the configured base weight.
// The floor keeps a misbehaving model reachable so it can demonstrate
// recovery instead of being starved forever.
func blendedWeight(e *modelEntry) float64 {
	sr := e.successRate()
	latencySeconds := e.avgLatencyMs() / 1000.0
	latencyDecay := 1.0 / (1.0 + latencySeconds)
	loadDecay := 1.0 / (1.0 + float64(e.concurrent.Load()))

	performance := sr * sr * latencyDecay * loadDecay
	w := weightPerformanceBlend*performance + weightBaseBlend*e.baseWeight
	if w < weightFloor {
		w = weightFloor
	}
	return w
}
