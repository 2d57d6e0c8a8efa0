package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/internal/util"
)

// BreakerResetter is the slice of the resilience manager the circuit reset
// action needs.
type BreakerResetter interface {
	Reset(service string) bool
}

// CircuitResetAction force-closes a service's circuit breaker after a
// successful health probe. Resetting without probing just re-opens the
// breaker on the next burst of failures.
type CircuitResetAction struct {
	resetter BreakerResetter
	probe    func(ctx context.Context, service string) error
	log      *logger.StyledLogger
}

func NewCircuitResetAction(resetter BreakerResetter, probe func(ctx context.Context, service string) error, log *logger.StyledLogger) *CircuitResetAction {
	return &CircuitResetAction{resetter: resetter, probe: probe, log: log}
}

var _ ports.RecoveryAction = (*CircuitResetAction)(nil)

func (a *CircuitResetAction) Name() string {
	return "circuit_reset"
}

func (a *CircuitResetAction) CanRecover(errorType string, _ domain.RecoveryContext) bool {
	return errorType == domain.ErrKindCircuitOpen.String()
}

func (a *CircuitResetAction) Execute(ctx context.Context, rctx domain.RecoveryContext) error {
	if a.probe != nil {
		if err := a.probe(ctx, rctx.ServiceName); err != nil {
			return fmt.Errorf("health probe for %s: %w", rctx.ServiceName, err)
		}
	}
	if !a.resetter.Reset(rctx.ServiceName) {
		return fmt.Errorf("no breaker registered for service %s", rctx.ServiceName)
	}
	a.log.InfoWithService("circuit breaker reset", rctx.ServiceName)
	return nil
}

// RedisPinger is the slice of the cache the redis reconnect action needs.
// go-redis re-establishes connections itself; the action verifies the pool
// is usable again and fails the pass otherwise.
type RedisPinger interface {
	PingRedis(ctx context.Context) error
}

type RedisReconnectAction struct {
	pinger RedisPinger
	log    *logger.StyledLogger
}

func NewRedisReconnectAction(pinger RedisPinger, log *logger.StyledLogger) *RedisReconnectAction {
	return &RedisReconnectAction{pinger: pinger, log: log}
}

var _ ports.RecoveryAction = (*RedisReconnectAction)(nil)

func (a *RedisReconnectAction) Name() string {
	return "redis_reconnect"
}

func (a *RedisReconnectAction) CanRecover(errorType string, rctx domain.RecoveryContext) bool {
	if rctx.Component != "redis" {
		return false
	}
	switch errorType {
	case domain.ErrKindNetwork.String(), domain.ErrKindServer.String(), domain.ErrKindTimeout.String():
		return true
	default:
		return false
	}
}

func (a *RedisReconnectAction) Execute(ctx context.Context, _ domain.RecoveryContext) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.pinger.PingRedis(pingCtx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	a.log.Info("redis connection verified")
	return nil
}

// CacheRewarmAction clears a poisoned cache and optionally re-seeds it.
// Rewarm is best effort: a cleared cache is already a recovered cache.
type CacheRewarmAction struct {
	cache  ports.Cache
	rewarm func(ctx context.Context) error
	log    *logger.StyledLogger
}

func NewCacheRewarmAction(cache ports.Cache, rewarm func(ctx context.Context) error, log *logger.StyledLogger) *CacheRewarmAction {
	return &CacheRewarmAction{cache: cache, rewarm: rewarm, log: log}
}

var _ ports.RecoveryAction = (*CacheRewarmAction)(nil)

func (a *CacheRewarmAction) Name() string {
	return "cache_rewarm"
}

func (a *CacheRewarmAction) CanRecover(_ string, rctx domain.RecoveryContext) bool {
	return rctx.Component == "cache"
}

func (a *CacheRewarmAction) Execute(ctx context.Context, _ domain.RecoveryContext) error {
	if err := a.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	if a.rewarm != nil {
		if err := a.rewarm(ctx); err != nil {
			a.log.Warn("cache rewarm failed after clear", "error", err)
		}
	}
	a.log.Info("cache cleared")
	return nil
}

// ServiceRestartLifecycle abstracts a restartable in-process component.
type ServiceRestartLifecycle interface {
	Stop(ctx context.Context, service string) error
	Start(ctx context.Context, service string) error
	Verify(ctx context.Context, service string) error
}

// ServiceRestartAction bounces a component: stop, grace period, start,
// verify. Any step failing fails the whole action.
type ServiceRestartAction struct {
	lifecycle ServiceRestartLifecycle
	log       *logger.StyledLogger
	grace     time.Duration
}

func NewServiceRestartAction(lifecycle ServiceRestartLifecycle, grace time.Duration, log *logger.StyledLogger) *ServiceRestartAction {
	return &ServiceRestartAction{lifecycle: lifecycle, grace: grace, log: log}
}

var _ ports.RecoveryAction = (*ServiceRestartAction)(nil)

func (a *ServiceRestartAction) Name() string {
	return "service_restart"
}

func (a *ServiceRestartAction) CanRecover(errorType string, _ domain.RecoveryContext) bool {
	switch errorType {
	case domain.ErrKindServer.String(), domain.ErrKindUnavailable.String():
		return true
	default:
		return false
	}
}

func (a *ServiceRestartAction) Execute(ctx context.Context, rctx domain.RecoveryContext) error {
	service := rctx.ServiceName

	if err := a.lifecycle.Stop(ctx, service); err != nil {
		return fmt.Errorf("stopping %s: %w", service, err)
	}
	if a.grace > 0 {
		if !util.SleepContext(ctx.Done(), a.grace) {
			return ctx.Err()
		}
	}
	if err := a.lifecycle.Start(ctx, service); err != nil {
		return fmt.Errorf("starting %s: %w", service, err)
	}
	if err := a.lifecycle.Verify(ctx, service); err != nil {
		return fmt.Errorf("verifying %s after restart: %w", service, err)
	}

	a.log.InfoWithService("service restarted", service)
	return nil
}
