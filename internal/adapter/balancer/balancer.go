package balancer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/pkg/eventbus"
)

const (
	StrategyWeighted    = "weighted"
	StrategyPerformance = "performance"
	StrategyRoundRobin  = "round_robin"
	StrategyLeastLoaded = "least_loaded"
	StrategyAdaptive    = "adaptive"
)

// LoadBalancer owns per-model metrics and routing weights. One instance is
// process-wide; every resilient client reports outcomes back into it so
// routing reflects live health even though selection and resilience are
// separate layers.
type LoadBalancer struct {
	models           *xsync.Map[string, *modelEntry]
	healthBus        *eventbus.EventBus[domain.HealthTransition]
	log              *logger.StyledLogger
	cfg              config.BalancerConfig
	rrCounter        atomic.Uint64
	lastWeightUpdate atomic.Int64 // unix nanos
	lastHealthSweep  atomic.Int64
}

func New(cfg config.BalancerConfig, healthBus *eventbus.EventBus[domain.HealthTransition], log *logger.StyledLogger) *LoadBalancer {
	if cfg.WeightUpdateInterval <= 0 {
		cfg.WeightUpdateInterval = 5 * time.Minute
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = time.Minute
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 0.2
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 0.5
	}
	return &LoadBalancer{
		models:    xsync.NewMap[string, *modelEntry](),
		healthBus: healthBus,
		cfg:       cfg,
		log:       log,
	}
}

var _ ports.ModelBalancer = (*LoadBalancer)(nil)

func (lb *LoadBalancer) RegisterModel(name string, weight float64, capabilities map[string]string) {
	entry := newModelEntry(name, weight, capabilities, lb.cfg.LatencyWindow)
	lb.models.Store(name, entry)
	if lb.log != nil {
		lb.log.InfoWithService("registered model", name, "weight", weight)
	}
}

func (lb *LoadBalancer) UnregisterModel(name string) {
	lb.models.Delete(name)
	if lb.log != nil {
		lb.log.InfoWithService("unregistered model", name)
	}
}

func (lb *LoadBalancer) RecordSuccess(model string, latency time.Duration, tokens int) {
	if e, ok := lb.models.Load(model); ok {
		e.recordSuccess(latency, tokens)
	}
}

func (lb *LoadBalancer) RecordError(model string, errorType string) {
	if e, ok := lb.models.Load(model); ok {
		e.recordError(errorType)
	}
}

// RecordRequestStart bumps the in-flight gauge. The returned func is
// idempotent so a cancellation cleanup path can never leave the gauge
// permanently inflated.
func (lb *LoadBalancer) RecordRequestStart(model string) func() {
	e, ok := lb.models.Load(model)
	if !ok {
		return func() {}
	}
	e.concurrent.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			e.concurrent.Add(-1)
		}
	}
}

// ModelsForRequest selects up to RequiredCount models for one request.
// Candidates default to every registered model; unhealthy candidates are
// excluded unless that would empty the set entirely.
func (lb *LoadBalancer) ModelsForRequest(ctx context.Context, req ports.SelectionRequest) ([]string, error) {
	lb.maybeUpdateWeights()
	lb.maybeSweepHealth()

	if req.RequiredCount < 1 {
		req.RequiredCount = 1
	}

	candidates := lb.resolveCandidates(req.Candidates)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate models registered")
	}

	if len(req.Capabilities) > 0 {
		filtered := candidates[:0]
		for _, e := range candidates {
			if e.matchesCapabilities(req.Capabilities) {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no candidate models match required capabilities")
		}
	}

	healthy := make([]*modelEntry, 0, len(candidates))
	for _, e := range candidates {
		if e.health(lb.cfg.DegradedThreshold, lb.cfg.UnhealthyThreshold).Routable() {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		// Last resort: routing to an unhealthy model beats failing the
		// request outright
		if lb.log != nil {
			lb.log.Warn("all candidate models unhealthy, bypassing health filter",
				"candidates", len(candidates))
		}
		healthy = candidates
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = lb.cfg.Strategy
	}

	selected, err := lb.applyStrategy(strategy, healthy, req.RequiredCount)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(selected))
	for i, e := range selected {
		names[i] = e.name
	}
	return names, nil
}

func (lb *LoadBalancer) resolveCandidates(names []string) []*modelEntry {
	if len(names) == 0 {
		all := make([]*modelEntry, 0, lb.models.Size())
		lb.models.Range(func(_ string, e *modelEntry) bool {
			all = append(all, e)
			return true
		})
		return all
	}

	entries := make([]*modelEntry, 0, len(names))
	for _, name := range names {
		if e, ok := lb.models.Load(name); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Snapshot copies every model's metrics for observability surfaces.
func (lb *LoadBalancer) Snapshot() map[string]domain.ModelSnapshot {
	out := make(map[string]domain.ModelSnapshot, lb.models.Size())
	lb.models.Range(func(name string, e *modelEntry) bool {
		out[name] = e.snapshot(lb.cfg.DegradedThreshold, lb.cfg.UnhealthyThreshold)
		return true
	})
	return out
}

// SetStrategy swaps the default strategy, used by config hot-reload.
func (lb *LoadBalancer) SetStrategy(strategy string) {
	lb.cfg.Strategy = strategy
}

// maybeSweepHealth reclassifies every model at most once per
// HealthCheckInterval and publishes transitions.
func (lb *LoadBalancer) maybeSweepHealth() {
	now := time.Now().UnixNano()
	last := lb.lastHealthSweep.Load()
	if now-last < lb.cfg.HealthCheckInterval.Nanoseconds() {
		return
	}
	if !lb.lastHealthSweep.CompareAndSwap(last, now) {
		return
	}

	lb.models.Range(func(name string, e *modelEntry) bool {
		current := e.health(lb.cfg.DegradedThreshold, lb.cfg.UnhealthyThreshold)

		e.mu.Lock()
		previous := e.lastHealth
		e.lastHealth = current
		e.mu.Unlock()

		if previous != current {
			if lb.log != nil {
				lb.log.InfoHealthStatus("model health changed", name, current,
					"previous", previous.String())
			}
			if lb.healthBus != nil {
				lb.healthBus.Publish(domain.HealthTransition{Model: name, From: previous, To: current})
			}
		}
		return true
	})
}
