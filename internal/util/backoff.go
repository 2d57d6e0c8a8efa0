package util

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff computes the delay before retry attempt `attempt`
// (0-indexed). Formula: initial * base^attempt, capped at max, with an
// optional uniform jitter of up to ±jitterFraction, floored at zero.
func ExponentialBackoff(attempt int, initial, max time.Duration, base, jitterFraction float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		base = 2
	}

	delay := float64(initial) * math.Pow(base, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}

	if jitterFraction > 0 {
		jitter := delay * jitterFraction * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// SleepContext pauses for d or until ctx is done, whichever comes first.
// Returns false if the context expired during the wait.
func SleepContext(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
