package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 19777
	DefaultHost = "localhost"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			LogDir:     "./logs",
			FileOutput: false,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Balancer: BalancerConfig{
			Strategy:             "adaptive",
			WeightUpdateInterval: 5 * time.Minute,
			HealthCheckInterval:  time.Minute,
			DegradedThreshold:    0.2,
			UnhealthyThreshold:   0.5,
			LatencyWindow:        100,
		},
		Cache: CacheConfig{
			MemoryItems:  1000,
			DiskEnabled:  true,
			DiskDir:      "./cache",
			RedisEnabled: false,
			RedisURL:     "redis://localhost:6379/0",
			DefaultTTL:   time.Hour,
			NamespaceTTLs: map[string]time.Duration{
				"generation": time.Hour,
			},
		},
		Resilience: ResilienceConfig{
			FailureThreshold:   5,
			RecoveryTimeout:    30 * time.Second,
			SuccessThreshold:   2,
			CallTimeout:        2 * time.Minute, // LLM calls run long
			MaxRetryAttempts:   3,
			InitialRetryDelay:  500 * time.Millisecond,
			MaxRetryDelay:      30 * time.Second,
			RetryBackoffBase:   2.0,
			RetryJitter:        true,
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			Interval:    5 * time.Second,
			Timeout:     2 * time.Minute,
			HistorySize: 100,
		},
		OpMode: OpModeConfig{
			StatePath: "./state/opmode.json",
		},
		Services:  map[string]ServiceConfig{},
		Providers: []ProviderConfig{},
	}
}

// ResilienceFor resolves the effective pipeline tuning for a service,
// applying the per-service override when one exists.
func (c *Config) ResilienceFor(service string) ResilienceConfig {
	if sc, ok := c.Services[service]; ok && sc.Resilience != nil {
		return *sc.Resilience
	}
	return c.Resilience
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("MANIFOLD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("MANIFOLD_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return config, nil
}

// Watch re-reads the config file on change and hands the result to onChange.
// Decode failures are reported through onError and the previous config
// stays in effect.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		config := DefaultConfig()
		if err := viper.Unmarshal(config); err != nil {
			if onError != nil {
				onError(fmt.Errorf("config reload failed: %w", err))
			}
			return
		}
		onChange(config)
	})
	viper.WatchConfig()
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behaviour.
func (c *Config) Validate() error {
	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("resilience.failure_threshold must be >= 1")
	}
	if c.Resilience.SuccessThreshold < 1 {
		return fmt.Errorf("resilience.success_threshold must be >= 1")
	}
	if c.Resilience.MaxRetryAttempts < 1 {
		return fmt.Errorf("resilience.max_retry_attempts must be >= 1")
	}
	if c.Balancer.UnhealthyThreshold <= c.Balancer.DegradedThreshold {
		return fmt.Errorf("balancer.unhealthy_threshold must exceed degraded_threshold")
	}
	if c.Cache.MemoryItems < 1 {
		return fmt.Errorf("cache.memory_items must be >= 1")
	}
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name must not be empty")
		}
		if p.Type == "http" && p.URL == "" {
			return fmt.Errorf("provider %s: http providers need a url", p.Name)
		}
	}
	return nil
}
