package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/adapter/balancer"
	"github.com/keirav/manifold/internal/adapter/provider"
	"github.com/keirav/manifold/internal/adapter/resilience"
	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/theme"
)

func newTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func fastResilience() config.ResilienceConfig {
	return config.ResilienceConfig{
		FailureThreshold:   2,
		RecoveryTimeout:    time.Minute,
		SuccessThreshold:   1,
		MaxRetryAttempts:   1,
		InitialRetryDelay:  time.Millisecond,
		MaxRetryDelay:      time.Millisecond,
		RetryBackoffBase:   2.0,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
}

func newTestBalancer() *balancer.LoadBalancer {
	return balancer.New(config.BalancerConfig{
		Strategy:             balancer.StrategyRoundRobin,
		WeightUpdateInterval: time.Hour,
		HealthCheckInterval:  time.Hour,
		DegradedThreshold:    0.2,
		UnhealthyThreshold:   0.5,
	}, nil, newTestLogger())
}

func requestFor(model string) domain.GenerateRequest {
	return domain.GenerateRequest{Prompt: "hello", Model: model}
}

func TestResilientClient_SuccessFeedsBalancer(t *testing.T) {
	lb := newTestBalancer()
	lb.RegisterModel("gpt-test", 1, nil)
	m := resilience.NewManager(func(string) config.ResilienceConfig { return fastResilience() }, newTestLogger())

	client := NewResilientClient(
		provider.NewSimulated("openai", provider.SimOptions{}),
		m.PipelineFor("openai", nil), lb, newTestLogger())

	resp, err := client.Generate(context.Background(), requestFor("gpt-test"))
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)

	snap := lb.Snapshot()["gpt-test"]
	assert.Equal(t, int64(1), snap.SuccessCount)
	assert.Equal(t, int64(0), snap.ConcurrentRequests, "the in-flight gauge must come back down")
}

func TestResilientClient_FailureRecordsErrorWithKind(t *testing.T) {
	lb := newTestBalancer()
	lb.RegisterModel("gpt-test", 1, nil)
	m := resilience.NewManager(func(string) config.ResilienceConfig { return fastResilience() }, newTestLogger())

	failing := provider.NewSimulated("openai", provider.SimOptions{
		FailWith: domain.NewProviderError(domain.ErrKindServer, "openai", "gpt-test", errors.New("boom")),
	})
	client := NewResilientClient(failing, m.PipelineFor("openai", nil), lb, newTestLogger())

	_, err := client.Generate(context.Background(), requestFor("gpt-test"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindServer, domain.KindOf(err))

	snap := lb.Snapshot()["gpt-test"]
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, int64(1), snap.ErrorTypes["server_error"])
	assert.Equal(t, int64(0), snap.ConcurrentRequests)
}

func TestResilientClient_CircuitOpenTranslatesToUnavailable(t *testing.T) {
	lb := newTestBalancer()
	lb.RegisterModel("gpt-test", 1, nil)
	m := resilience.NewManager(func(string) config.ResilienceConfig { return fastResilience() }, newTestLogger())

	failing := provider.NewSimulated("openai", provider.SimOptions{
		FailWith: domain.NewProviderError(domain.ErrKindServer, "openai", "gpt-test", errors.New("boom")),
	})
	client := NewResilientClient(failing, m.PipelineFor("openai", nil), lb, newTestLogger())

	// Two failures open the breaker
	for i := 0; i < 2; i++ {
		_, _ = client.Generate(context.Background(), requestFor("gpt-test"))
	}
	require.Equal(t, resilience.StateOpen, m.Breaker("openai").State())

	_, err := client.Generate(context.Background(), requestFor("gpt-test"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindUnavailable, domain.KindOf(err),
		"callers see model unavailability, not breaker internals")

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "gpt-test", pe.Model)
}

func TestResilientClient_FallbackRescuesCircuitOpen(t *testing.T) {
	lb := newTestBalancer()
	lb.RegisterModel("gpt-test", 1, nil)
	m := resilience.NewManager(func(string) config.ResilienceConfig { return fastResilience() }, newTestLogger())

	failing := provider.NewSimulated("openai", provider.SimOptions{
		FailWith: domain.NewProviderError(domain.ErrKindServer, "openai", "gpt-test", errors.New("boom")),
	})
	primary := NewResilientClient(failing, m.PipelineFor("openai", nil), lb, newTestLogger())

	backup := NewResilientClient(
		provider.NewSimulated("anthropic", provider.SimOptions{}),
		m.PipelineFor("anthropic", nil), lb, newTestLogger())
	primary.SetFallback(backup)

	for i := 0; i < 2; i++ {
		_, _ = primary.Generate(context.Background(), requestFor("gpt-test"))
	}
	require.Equal(t, resilience.StateOpen, m.Breaker("openai").State())

	resp, err := primary.Generate(context.Background(), requestFor("gpt-test"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider, "the fallback provider answers while the primary is open")
}

func TestResilientClient_CancellationStillBalancesGauge(t *testing.T) {
	lb := newTestBalancer()
	lb.RegisterModel("gpt-test", 1, nil)
	m := resilience.NewManager(func(string) config.ResilienceConfig { return fastResilience() }, newTestLogger())

	slow := provider.NewSimulated("openai", provider.SimOptions{Latency: 5 * time.Second})
	client := NewResilientClient(slow, m.PipelineFor("openai", nil), lb, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, requestFor("gpt-test"))
	require.Error(t, err)
	assert.Equal(t, int64(0), lb.Snapshot()["gpt-test"].ConcurrentRequests)
}
