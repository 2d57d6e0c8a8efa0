package resilience

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/logger"
)

// Manager owns exactly one breaker and one rate limiter per service name.
// Components never construct these directly; sharing the instance is what
// makes state transitions atomic across concurrent callers.
type Manager struct {
	breakers *xsync.Map[string, *CircuitBreaker]
	limiters *xsync.Map[string, *RateLimiter]
	resolve  func(service string) config.ResilienceConfig
	log      *logger.StyledLogger
}

func NewManager(resolve func(service string) config.ResilienceConfig, log *logger.StyledLogger) *Manager {
	return &Manager{
		breakers: xsync.NewMap[string, *CircuitBreaker](),
		limiters: xsync.NewMap[string, *RateLimiter](),
		resolve:  resolve,
		log:      log,
	}
}

func (m *Manager) Breaker(service string) *CircuitBreaker {
	cb, _ := m.breakers.LoadOrCompute(service, func() (*CircuitBreaker, bool) {
		rc := m.resolve(service)
		return NewCircuitBreaker(BreakerConfig{
			Name:             service,
			FailureThreshold: rc.FailureThreshold,
			RecoveryTimeout:  rc.RecoveryTimeout,
			SuccessThreshold: rc.SuccessThreshold,
		}, m.log), false
	})
	return cb
}

func (m *Manager) Limiter(service string) *RateLimiter {
	rl, _ := m.limiters.LoadOrCompute(service, func() (*RateLimiter, bool) {
		rc := m.resolve(service)
		return NewRateLimiter(service, rc.RateLimitPerSecond, rc.RateLimitBurst), false
	})
	return rl
}

// RetryFor builds a fresh retry handler from the service's tuning. Handlers
// are stateless between runs so they are not pooled.
func (m *Manager) RetryFor(service string) *RetryHandler {
	rc := m.resolve(service)
	return NewRetryHandler(RetryConfig{
		MaxAttempts:  rc.MaxRetryAttempts,
		InitialDelay: rc.InitialRetryDelay,
		MaxDelay:     rc.MaxRetryDelay,
		Base:         rc.RetryBackoffBase,
		Jitter:       rc.RetryJitter,
	}, m.log)
}

// PipelineFor assembles the standard composite for a service. The call
// timeout lives on the pipeline so it bounds each retry attempt rather
// than the whole run.
func (m *Manager) PipelineFor(service string, fallback *Fallback) *Pipeline {
	rc := m.resolve(service)
	return NewPipeline(PipelineConfig{
		Service:     service,
		Limiter:     m.Limiter(service),
		Breaker:     m.Breaker(service),
		Retry:       m.RetryFor(service),
		Fallback:    fallback,
		CallTimeout: rc.CallTimeout,
	}, m.log)
}

// Statuses snapshots every registered breaker for the admin surface.
func (m *Manager) Statuses() map[string]BreakerStatus {
	out := make(map[string]BreakerStatus)
	m.breakers.Range(func(name string, cb *CircuitBreaker) bool {
		out[name] = cb.Status()
		return true
	})
	return out
}

// Reset forces a named breaker closed. Reports false for unknown services.
func (m *Manager) Reset(service string) bool {
	cb, ok := m.breakers.Load(service)
	if !ok {
		return false
	}
	cb.Reset()
	return true
}
