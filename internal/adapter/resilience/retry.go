package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/internal/util"
)

const retryJitterFraction = 0.1

type RetryConfig struct {
	// ExcludeIf is the deny-list, checked before RetryIf: a matching error
	// re-raises immediately with no further attempts.
	ExcludeIf func(error) bool
	// RetryIf is the allow-list. Nil falls back to the domain error
	// classification (timeouts, rate limits, server and network faults).
	RetryIf      func(error) bool
	OnRetry      func(attempt int, err error, delay time.Duration)
	OnFailure    func(attempts int, err error)
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
	Jitter       bool
}

// RetryExhaustedError reports that every attempt failed. It unwraps to the
// last error so kind classification still works above the retry layer.
type RetryExhaustedError struct {
	LastErr  error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// RetryHandler executes operations with exponential-backoff retry.
type RetryHandler struct {
	cfg RetryConfig
	log *logger.StyledLogger
}

func NewRetryHandler(cfg RetryConfig, log *logger.StyledLogger) *RetryHandler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Base <= 0 {
		cfg.Base = 2.0
	}
	return &RetryHandler{cfg: cfg, log: log}
}

// Execute runs fn up to MaxAttempts times. Attempts are 0-indexed for the
// backoff formula: delay(i) = min(initial * base^i, max), jittered ±10%.
func (r *RetryHandler) Execute(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 && r.log != nil {
				r.log.Debug("operation recovered after retry", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if r.excluded(err) || !r.retryable(err) {
			return err
		}

		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.Delay(attempt)
		if hint := domain.RetryAfterHint(err); hint > delay {
			delay = hint
		}

		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, delay)
		}
		if r.log != nil {
			r.log.Debug("retrying after failure", "attempt", attempt, "delay", delay, "error", err)
		}

		if !util.SleepContext(ctx.Done(), delay) {
			return ctx.Err()
		}
	}

	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(r.cfg.MaxAttempts, lastErr)
	}
	return &RetryExhaustedError{LastErr: lastErr, Attempts: r.cfg.MaxAttempts}
}

// Delay computes the backoff before the attempt after `attempt` (0-indexed).
func (r *RetryHandler) Delay(attempt int) time.Duration {
	jitter := 0.0
	if r.cfg.Jitter {
		jitter = retryJitterFraction
	}
	return util.ExponentialBackoff(attempt, r.cfg.InitialDelay, r.cfg.MaxDelay, r.cfg.Base, jitter)
}

func (r *RetryHandler) excluded(err error) bool {
	return r.cfg.ExcludeIf != nil && r.cfg.ExcludeIf(err)
}

func (r *RetryHandler) retryable(err error) bool {
	if r.cfg.RetryIf != nil {
		return r.cfg.RetryIf(err)
	}
	return domain.KindOf(err).Retryable()
}
