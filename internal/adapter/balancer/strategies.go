package balancer

import (
	"fmt"
	"math/rand"
	"sort"
)

const (
	perfSuccessWeight = 0.7
	perfLatencyWeight = 0.3
)

func (lb *LoadBalancer) applyStrategy(strategy string, entries []*modelEntry, count int) ([]*modelEntry, error) {
	if count > len(entries) {
		count = len(entries)
	}

	switch strategy {
	case StrategyWeighted:
		return lb.selectWeighted(entries, count), nil
	case StrategyPerformance:
		return lb.selectPerformance(entries, count), nil
	case StrategyRoundRobin:
		return lb.selectRoundRobin(entries, count), nil
	case StrategyLeastLoaded:
		return lb.selectLeastLoaded(entries, count), nil
	case StrategyAdaptive:
		return lb.selectAdaptive(entries, count), nil
	default:
		return nil, fmt.Errorf("unknown balancer strategy: %s", strategy)
	}
}

// selectWeighted always takes the single highest-weighted candidate
// deterministically, then samples the rest without replacement in
// proportion to normalised dynamic weight.
func (lb *LoadBalancer) selectWeighted(entries []*modelEntry, count int) []*modelEntry {
	pool := make([]*modelEntry, len(entries))
	copy(pool, entries)

	best := 0
	for i, e := range pool {
		if e.dynamicWeight() > pool[best].dynamicWeight() {
			best = i
		}
	}
	selected := []*modelEntry{pool[best]}
	pool = append(pool[:best], pool[best+1:]...)

	for len(selected) < count && len(pool) > 0 {
		total := 0.0
		for _, e := range pool {
			total += e.dynamicWeight()
		}

		pick := len(pool) - 1
		if total > 0 {
			target := rand.Float64() * total
			acc := 0.0
			for i, e := range pool {
				acc += e.dynamicWeight()
				if target <= acc {
					pick = i
					break
				}
			}
		}

		selected = append(selected, pool[pick])
		pool = append(pool[:pick], pool[pick+1:]...)
	}

	return selected
}

// performanceScore blends success rate and a latency decay so a fast model
// with occasional errors can outrank a slow but perfect one.
func performanceScore(e *modelEntry) float64 {
	latencySeconds := e.avgLatencyMs() / 1000.0
	timeScore := 1.0 / (1.0 + 0.5*latencySeconds)
	return perfSuccessWeight*e.successRate() + perfLatencyWeight*timeScore
}

func (lb *LoadBalancer) selectPerformance(entries []*modelEntry, count int) []*modelEntry {
	ranked := make([]*modelEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return performanceScore(ranked[i]) > performanceScore(ranked[j])
	})
	return ranked[:count]
}

// selectRoundRobin rotates a process-wide counter through the candidate
// list so N calls with N candidates cycle every one before repeating.
func (lb *LoadBalancer) selectRoundRobin(entries []*modelEntry, count int) []*modelEntry {
	sorted := make([]*modelEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	start := lb.rrCounter.Add(uint64(count)) - uint64(count)
	selected := make([]*modelEntry, 0, count)
	for i := 0; i < count; i++ {
		selected = append(selected, sorted[(start+uint64(i))%uint64(len(sorted))])
	}
	return selected
}

func (lb *LoadBalancer) selectLeastLoaded(entries []*modelEntry, count int) []*modelEntry {
	sorted := make([]*modelEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].concurrent.Load() < sorted[j].concurrent.Load()
	})
	return sorted[:count]
}

// selectAdaptive prefilters to the top performers then spreads by load, so
// selection tracks both response quality and current saturation.
func (lb *LoadBalancer) selectAdaptive(entries []*modelEntry, count int) []*modelEntry {
	prefilter := count * 2
	if prefilter > len(entries) {
		prefilter = len(entries)
	}
	top := lb.selectPerformance(entries, prefilter)
	return lb.selectLeastLoaded(top, count)
}
