package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)

	assert.Equal(t, "adaptive", cfg.Balancer.Strategy)
	assert.Less(t, cfg.Balancer.DegradedThreshold, cfg.Balancer.UnhealthyThreshold)

	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 3, cfg.Resilience.MaxRetryAttempts)
	assert.True(t, cfg.Resilience.RetryJitter)

	assert.Equal(t, 1000, cfg.Cache.MemoryItems)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)

	require.NoError(t, cfg.Validate(), "the defaults must validate")
}

func TestResilienceFor_ServiceOverride(t *testing.T) {
	cfg := DefaultConfig()
	override := cfg.Resilience
	override.FailureThreshold = 1
	cfg.Services = map[string]ServiceConfig{
		"openai": {Resilience: &override},
	}

	assert.Equal(t, 1, cfg.ResilienceFor("openai").FailureThreshold)
	assert.Equal(t, 5, cfg.ResilienceFor("anthropic").FailureThreshold,
		"services without an override fall back to the global tuning")
}

func TestValidate_RejectsBrokenConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero failure threshold", func(c *Config) { c.Resilience.FailureThreshold = 0 }},
		{"zero success threshold", func(c *Config) { c.Resilience.SuccessThreshold = 0 }},
		{"zero retry attempts", func(c *Config) { c.Resilience.MaxRetryAttempts = 0 }},
		{"inverted health thresholds", func(c *Config) {
			c.Balancer.DegradedThreshold = 0.6
			c.Balancer.UnhealthyThreshold = 0.5
		}},
		{"empty memory cache", func(c *Config) { c.Cache.MemoryItems = 0 }},
		{"unnamed provider", func(c *Config) {
			c.Providers = []ProviderConfig{{Type: "simulated"}}
		}},
		{"http provider without url", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "openai", Type: "http"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
