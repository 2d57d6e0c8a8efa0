package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/core/domain"
)

func TestRetryHandler_FirstAttemptSuccessSkipsRetry(t *testing.T) {
	r := NewRetryHandler(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second}, newTestLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHandler_RecoversAfterTransientFailures(t *testing.T) {
	r := NewRetryHandler(RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, newTestLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return serverErr()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHandler_ExhaustionWrapsLastError(t *testing.T) {
	r := NewRetryHandler(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, newTestLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return serverErr()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	// kind classification must survive the wrapper
	assert.Equal(t, domain.ErrKindServer, domain.KindOf(err))
}

func TestRetryHandler_NonRetryableFailsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth", domain.NewProviderError(domain.ErrKindAuth, "p", "m", errors.New("bad key"))},
		{"validation", domain.NewProviderError(domain.ErrKindValidation, "p", "m", errors.New("bad prompt"))},
		{"model_not_found", domain.NewProviderError(domain.ErrKindModelNotFound, "p", "m", errors.New("nope"))},
		{"circuit_open", domain.NewProviderError(domain.ErrKindCircuitOpen, "p", "", ErrCircuitOpen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetryHandler(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Second}, newTestLogger())

			calls := 0
			err := r.Execute(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			})

			assert.Equal(t, 1, calls, "non-retryable errors must not burn attempts")
			assert.Equal(t, tt.err, err, "error must surface unwrapped")
		})
	}
}

func TestRetryHandler_ExcludeIfBeatsRetryIf(t *testing.T) {
	marker := errors.New("do not touch")
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		ExcludeIf:    func(err error) bool { return errors.Is(err, marker) },
		RetryIf:      func(error) bool { return true },
	}, newTestLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return marker
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, marker)
}

func TestRetryHandler_DelayGrowsExponentiallyAndCaps(t *testing.T) {
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Base:         2.0,
	}, newTestLogger())

	assert.Equal(t, 100*time.Millisecond, r.Delay(0))
	assert.Equal(t, 200*time.Millisecond, r.Delay(1))
	assert.Equal(t, 400*time.Millisecond, r.Delay(2))
	assert.Equal(t, 800*time.Millisecond, r.Delay(3))
	assert.Equal(t, time.Second, r.Delay(4), "delay must cap at MaxDelay")
	assert.Equal(t, time.Second, r.Delay(10))
}

func TestRetryHandler_JitterStaysWithinBounds(t *testing.T) {
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Base:         2.0,
		Jitter:       true,
	}, newTestLogger())

	for i := 0; i < 100; i++ {
		d := r.Delay(1)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

func TestRetryHandler_HonoursRetryAfterHint(t *testing.T) {
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
	}, newTestLogger())

	var observed time.Duration
	r.cfg.OnRetry = func(_ int, _ error, delay time.Duration) { observed = delay }

	rateLimited := domain.NewProviderError(domain.ErrKindRateLimited, "p", "m", errors.New("slow down"))
	rateLimited.RetryAfter = 30 * time.Millisecond

	calls := 0
	_ = r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return rateLimited
		}
		return nil
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 30*time.Millisecond, observed, "provider hint must win over the smaller backoff")
}

func TestRetryHandler_ContextCancellationStopsWaiting(t *testing.T) {
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		MaxDelay:     time.Minute,
	}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.Execute(ctx, func(context.Context) error { return serverErr() })

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation must interrupt the backoff sleep")
}

func TestRetryHandler_OnFailureFiresOnceOnExhaustion(t *testing.T) {
	var reportedAttempts int
	r := NewRetryHandler(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		OnFailure:    func(attempts int, _ error) { reportedAttempts = attempts },
	}, newTestLogger())

	_ = r.Execute(context.Background(), func(context.Context) error { return serverErr() })
	assert.Equal(t, 2, reportedAttempts)
}
