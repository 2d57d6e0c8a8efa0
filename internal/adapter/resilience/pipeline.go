package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
)

// Operation is one resilience-wrapped unit of work. Results travel through
// closure captures; the pipeline only routes errors.
type Operation func(ctx context.Context) error

// Fallback substitutes an alternate execution path when the primary path's
// terminal error matches the trigger set.
type Fallback struct {
	// Trigger decides which terminal errors divert to the fallback. Nil
	// triggers on circuit-open and unavailable conditions only.
	Trigger func(error) bool
	Run     Operation
	Name    string
}

func (f *Fallback) triggers(err error) bool {
	if f.Trigger != nil {
		return f.Trigger(err)
	}
	switch domain.KindOf(err) {
	case domain.ErrKindCircuitOpen, domain.ErrKindUnavailable:
		return true
	default:
		return false
	}
}

// Pipeline composes rate limiter -> circuit breaker -> retry -> the
// timeout-bounded raw call, with an optional fallback on terminal failure.
// CallTimeout bounds each individual attempt, so a slow call can still be
// retried up to the attempt budget. One breaker outcome is recorded per
// pipeline run: an exhausted retry loop counts as a single breaker failure.
type Pipeline struct {
	limiter     *RateLimiter
	breaker     *CircuitBreaker
	retry       *RetryHandler
	fallback    *Fallback
	log         *logger.StyledLogger
	service     string
	callTimeout time.Duration
}

type PipelineConfig struct {
	Limiter     *RateLimiter
	Breaker     *CircuitBreaker
	Retry       *RetryHandler
	Fallback    *Fallback
	Service     string
	CallTimeout time.Duration
}

func NewPipeline(cfg PipelineConfig, log *logger.StyledLogger) *Pipeline {
	return &Pipeline{
		service:     cfg.Service,
		limiter:     cfg.Limiter,
		breaker:     cfg.Breaker,
		retry:       cfg.Retry,
		fallback:    cfg.Fallback,
		callTimeout: cfg.CallTimeout,
		log:         log,
	}
}

// Execute runs op through the full pipeline. The retry-exhausted wrapper is
// consumed here: callers see the last underlying error, or the fallback's
// result when one is configured and triggered.
func (p *Pipeline) Execute(ctx context.Context, op Operation) error {
	return p.ExecuteWithFallback(ctx, op, p.fallback)
}

// ExecuteWithFallback overrides the configured fallback for one call.
// Results flow through closures, so callers whose fallback produces a value
// build the Fallback per call.
func (p *Pipeline) ExecuteWithFallback(ctx context.Context, op Operation, fallback *Fallback) error {
	err := p.executePrimary(ctx, op)
	if err == nil {
		return nil
	}

	if fallback != nil && fallback.triggers(err) {
		if p.log != nil {
			p.log.InfoWithService("falling back after failure", p.service,
				"fallback", fallback.Name, "error", err)
		}
		if fbErr := fallback.Run(ctx); fbErr == nil {
			return nil
		}
		// Fallback failed too; the primary error is the more useful signal
	}

	return err
}

func (p *Pipeline) executePrimary(ctx context.Context, op Operation) error {
	if p.limiter != nil {
		if err := p.limiter.Allow(); err != nil {
			return err
		}
	}

	attempt := func(ctx context.Context) error {
		return p.runAttempt(ctx, op)
	}

	run := func(ctx context.Context) error {
		if p.retry != nil {
			return unwrapExhausted(p.retry.Execute(ctx, attempt))
		}
		return attempt(ctx)
	}

	if p.breaker != nil {
		return p.breaker.Execute(ctx, run)
	}
	return run(ctx)
}

// runAttempt bounds one raw call with the call timeout. The deadline is
// fresh per attempt; an attempt that times out leaves the retry loop's own
// context untouched.
func (p *Pipeline) runAttempt(ctx context.Context, op Operation) error {
	if p.callTimeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	err := op(attemptCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil &&
		domain.KindOf(err) != domain.ErrKindTimeout {
		// The attempt deadline fired and the adapter did not classify it
		err = domain.NewProviderError(domain.ErrKindTimeout, p.service, "",
			fmt.Errorf("call exceeded %s: %w", p.callTimeout, err))
	}
	return err
}

// unwrapExhausted strips the retry bookkeeping wrapper so the breaker and
// callers classify the real failure. The wrapper is an internal signal and
// should not leak past the composite.
func unwrapExhausted(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RetryExhaustedError); ok && re.LastErr != nil {
		return re.LastErr
	}
	return err
}
