package resilience

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/keirav/manifold/internal/core/domain"
)

// RateLimiter bounds the call rate into one downstream service. Admission
// is non-blocking: a rejected call fails fast with a retry-after hint
// instead of queueing against an already saturated provider.
type RateLimiter struct {
	limiter *rate.Limiter
	service string
}

func NewRateLimiter(service string, perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		service: service,
	}
}

// Allow admits the call or returns a rate-limited error carrying the wait
// the caller should observe before trying again.
func (r *RateLimiter) Allow() error {
	res := r.limiter.Reserve()
	if !res.OK() {
		return domain.NewProviderError(domain.ErrKindRateLimited, r.service, "",
			fmt.Errorf("rate limit burst exceeded for %s", r.service))
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		perr := domain.NewProviderError(domain.ErrKindRateLimited, r.service, "",
			fmt.Errorf("rate limit exceeded for %s", r.service))
		perr.RetryAfter = delay
		return perr
	}
	return nil
}

// Tokens reports the currently available tokens, for status surfaces.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
