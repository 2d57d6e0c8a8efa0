package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/adapter/balancer"
	"github.com/keirav/manifold/internal/adapter/cache"
	"github.com/keirav/manifold/internal/adapter/opmode"
	"github.com/keirav/manifold/internal/adapter/provider"
	"github.com/keirav/manifold/internal/adapter/recovery"
	"github.com/keirav/manifold/internal/adapter/resilience"
	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
)

type gatewayFixture struct {
	gateway *Gateway
	lb      *balancer.LoadBalancer
	cache   *cache.TieredCache
	modes   *opmode.Controller
	manager *resilience.Manager
	engine  *recovery.Engine
}

// newGatewayFixture wires a gateway over simulated providers, one model per
// provider, with a memory-only cache.
func newGatewayFixture(t *testing.T, providers map[string]*provider.Simulated, resCfg config.ResilienceConfig) *gatewayFixture {
	t.Helper()

	lb := newTestBalancer()
	manager := resilience.NewManager(func(string) config.ResilienceConfig { return resCfg }, newTestLogger())
	modes := opmode.New(filepath.Join(t.TempDir(), "opmode.json"), newTestLogger())
	engine := recovery.NewEngine(config.RecoveryConfig{MaxAttempts: 1, HistorySize: 10}, newTestLogger())

	tiered, err := cache.New(config.CacheConfig{MemoryItems: 100, DefaultTTL: time.Minute}, newTestLogger())
	require.NoError(t, err)

	clients := make(map[string]*ResilientClient, len(providers))
	for model, sim := range providers {
		lb.RegisterModel(model, 1, nil)
		clients[model] = NewResilientClient(sim, manager.PipelineFor(sim.Name(), nil), lb, newTestLogger())
	}

	gw := NewGateway(GatewayConfig{Clients: clients, CacheTTL: time.Minute},
		lb, tiered, modes, engine, newTestLogger())

	return &gatewayFixture{gateway: gw, lb: lb, cache: tiered, modes: modes, manager: manager, engine: engine}
}

func TestGateway_PartialFailureIsStillSuccess(t *testing.T) {
	resCfg := fastResilience()
	resCfg.CallTimeout = 60 * time.Millisecond

	fx := newGatewayFixture(t, map[string]*provider.Simulated{
		// model-a: hard server errors
		"model-a": provider.NewSimulated("provider-a", provider.SimOptions{
			FailWith: domain.NewProviderError(domain.ErrKindServer, "provider-a", "model-a", errors.New("boom")),
		}),
		// model-b: slower than the call timeout
		"model-b": provider.NewSimulated("provider-b", provider.SimOptions{Latency: 5 * time.Second}),
		// model-c: healthy and fast
		"model-c": provider.NewSimulated("provider-c", provider.SimOptions{Latency: 50 * time.Millisecond}),
	}, resCfg)

	result, err := fx.gateway.Handle(context.Background(), domain.FanoutRequest{
		Prompt:        "compare yourselves",
		RequiredCount: 3,
		Strategy:      balancer.StrategyAdaptive,
	})

	require.NoError(t, err, "one healthy model makes the fan-out a success")
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RequestID)
	assert.False(t, result.FromCache)

	require.Contains(t, result.Responses, "model-c")
	assert.Equal(t, "provider-c", result.Responses["model-c"].Provider)

	assert.Contains(t, result.Failures, "model-a")
	assert.Contains(t, result.Failures, "model-b")

	snap := fx.lb.Snapshot()
	assert.Equal(t, int64(1), snap["model-c"].SuccessCount)
	assert.Equal(t, int64(1), snap["model-a"].ErrorCount)
	assert.Equal(t, int64(1), snap["model-b"].ErrorTypes["timeout"])
}

func TestGateway_AllFailedReturnsAggregateError(t *testing.T) {
	fx := newGatewayFixture(t, map[string]*provider.Simulated{
		"model-a": provider.NewSimulated("provider-a", provider.SimOptions{
			FailWith: domain.NewProviderError(domain.ErrKindServer, "provider-a", "model-a", errors.New("boom")),
		}),
		"model-b": provider.NewSimulated("provider-b", provider.SimOptions{
			FailWith: domain.NewProviderError(domain.ErrKindServer, "provider-b", "model-b", errors.New("bang")),
		}),
	}, fastResilience())

	result, err := fx.gateway.Handle(context.Background(), domain.FanoutRequest{
		Prompt:        "anyone there",
		RequiredCount: 2,
	})

	require.Error(t, err)
	assert.Nil(t, result)

	var agg *domain.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Failures, 2)
}

func TestGateway_IdenticalRequestServedFromCache(t *testing.T) {
	sim := provider.NewSimulated("provider-c", provider.SimOptions{})
	fx := newGatewayFixture(t, map[string]*provider.Simulated{"model-c": sim}, fastResilience())

	req := domain.FanoutRequest{Prompt: "cache me", RequiredCount: 1}

	first, err := fx.gateway.Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := fx.gateway.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.NotEqual(t, first.RequestID, second.RequestID, "cached replies still get a fresh request ID")
	assert.Equal(t, first.Responses["model-c"].Text, second.Responses["model-c"].Text)
	assert.Equal(t, int64(1), sim.Calls(), "the provider must not be called on a cache hit")
}

func TestGateway_DifferentPromptMissesCache(t *testing.T) {
	sim := provider.NewSimulated("provider-c", provider.SimOptions{})
	fx := newGatewayFixture(t, map[string]*provider.Simulated{"model-c": sim}, fastResilience())

	_, err := fx.gateway.Handle(context.Background(), domain.FanoutRequest{Prompt: "one", RequiredCount: 1})
	require.NoError(t, err)
	_, err = fx.gateway.Handle(context.Background(), domain.FanoutRequest{Prompt: "two", RequiredCount: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(2), sim.Calls())
}

func TestGateway_CachingCanBeDisabled(t *testing.T) {
	sim := provider.NewSimulated("provider-c", provider.SimOptions{})
	fx := newGatewayFixture(t, map[string]*provider.Simulated{"model-c": sim}, fastResilience())
	fx.gateway.SetCaching(false)

	req := domain.FanoutRequest{Prompt: "no cache", RequiredCount: 1}
	_, err := fx.gateway.Handle(context.Background(), req)
	require.NoError(t, err)
	_, err = fx.gateway.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(2), sim.Calls())
}

func TestGateway_ProviderUnavailabilityFeedsOperationMode(t *testing.T) {
	resCfg := fastResilience()
	resCfg.FailureThreshold = 1

	fx := newGatewayFixture(t, map[string]*provider.Simulated{
		"model-a": provider.NewSimulated("provider-a", provider.SimOptions{
			FailWith: domain.NewProviderError(domain.ErrKindServer, "provider-a", "model-a", errors.New("boom")),
		}),
	}, resCfg)

	// First call opens the breaker, second surfaces unavailability
	_, _ = fx.gateway.Handle(context.Background(), domain.FanoutRequest{Prompt: "x", RequiredCount: 1})
	_, _ = fx.gateway.Handle(context.Background(), domain.FanoutRequest{Prompt: "y", RequiredCount: 1})

	assert.Equal(t, domain.ModeDegraded, fx.modes.Mode())
	assert.Contains(t, fx.modes.Degraded(), "provider-a")
}

func TestGateway_RecoverySucceedsAndHealthReturns(t *testing.T) {
	resCfg := fastResilience()
	resCfg.FailureThreshold = 1

	fx := newGatewayFixture(t, map[string]*provider.Simulated{
		"model-a": provider.NewSimulated("provider-a", provider.SimOptions{
			FailWith: domain.NewProviderError(domain.ErrKindServer, "provider-a", "model-a", errors.New("boom")),
		}),
	}, resCfg)
	fx.engine.RegisterAction(recovery.NewCircuitResetAction(fx.manager, nil, newTestLogger()))

	_, _ = fx.gateway.Handle(context.Background(), domain.FanoutRequest{Prompt: "x", RequiredCount: 1})
	require.Equal(t, resilience.StateOpen, fx.manager.Breaker("provider-a").State())

	ok := fx.engine.HandleFailure(context.Background(), "circuit_open", domain.RecoveryContext{
		ServiceName: "provider-a",
		Component:   "provider",
	})
	require.True(t, ok)
	assert.Equal(t, resilience.StateClosed, fx.manager.Breaker("provider-a").State())
}

func TestRequestFingerprint_StableAndDiscriminating(t *testing.T) {
	base := requestFingerprint("prompt", []string{"a", "b"}, map[string]interface{}{"temp": 0.7})

	assert.Equal(t, base, requestFingerprint("prompt", []string{"b", "a"}, map[string]interface{}{"temp": 0.7}),
		"model order must not change the fingerprint")
	assert.NotEqual(t, base, requestFingerprint("other", []string{"a", "b"}, map[string]interface{}{"temp": 0.7}))
	assert.NotEqual(t, base, requestFingerprint("prompt", []string{"a"}, map[string]interface{}{"temp": 0.7}))
	assert.NotEqual(t, base, requestFingerprint("prompt", []string{"a", "b"}, map[string]interface{}{"temp": 0.9}))
}
