package config

import "time"

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Balancer   BalancerConfig            `mapstructure:"balancer"`
	Cache      CacheConfig               `mapstructure:"cache"`
	Resilience ResilienceConfig          `mapstructure:"resilience"`
	Recovery   RecoveryConfig            `mapstructure:"recovery"`
	OpMode     OpModeConfig              `mapstructure:"opmode"`
	Services   map[string]ServiceConfig  `mapstructure:"services"`
	Providers  []ProviderConfig          `mapstructure:"providers"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Theme      string `mapstructure:"theme"`
	LogDir     string `mapstructure:"log_dir"`
	FileOutput bool   `mapstructure:"file_output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// ProviderConfig describes one LLM provider integration. Type selects the
// adapter implementation ("http" or "simulated"); the factory never
// inspects runtime types.
type ProviderConfig struct {
	Capabilities map[string]string `mapstructure:"capabilities"`
	Name         string            `mapstructure:"name"`
	Type         string            `mapstructure:"type"`
	URL          string            `mapstructure:"url"`
	APIKey       string            `mapstructure:"api_key"`
	Models       []string          `mapstructure:"models"`
	Weight       float64           `mapstructure:"weight"`
}

type BalancerConfig struct {
	Strategy             string        `mapstructure:"strategy"`
	WeightUpdateInterval time.Duration `mapstructure:"weight_update_interval"`
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	DegradedThreshold    float64       `mapstructure:"degraded_threshold"`
	UnhealthyThreshold   float64       `mapstructure:"unhealthy_threshold"`
	LatencyWindow        int           `mapstructure:"latency_window"`
}

type CacheConfig struct {
	NamespaceTTLs map[string]time.Duration `mapstructure:"namespace_ttls"`
	DiskDir       string                   `mapstructure:"disk_dir"`
	RedisURL      string                   `mapstructure:"redis_url"`
	DefaultTTL    time.Duration            `mapstructure:"default_ttl"`
	MemoryItems   int                      `mapstructure:"memory_items"`
	DiskEnabled   bool                     `mapstructure:"disk_enabled"`
	RedisEnabled  bool                     `mapstructure:"redis_enabled"`
}

// ResilienceConfig is the default pipeline tuning applied to every service
// unless a ServiceConfig overrides it.
type ResilienceConfig struct {
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	RecoveryTimeout    time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold   int           `mapstructure:"success_threshold"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	MaxRetryAttempts   int           `mapstructure:"max_retry_attempts"`
	InitialRetryDelay  time.Duration `mapstructure:"initial_retry_delay"`
	MaxRetryDelay      time.Duration `mapstructure:"max_retry_delay"`
	RetryBackoffBase   float64       `mapstructure:"retry_backoff_base"`
	RetryJitter        bool          `mapstructure:"retry_jitter"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// ServiceConfig is a per-service override of the resilience defaults.
type ServiceConfig struct {
	Resilience *ResilienceConfig `mapstructure:"resilience"`
	Fallback   string            `mapstructure:"fallback"`
}

type RecoveryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistorySize int           `mapstructure:"history_size"`
}

type OpModeConfig struct {
	StatePath string `mapstructure:"state_path"`
}
