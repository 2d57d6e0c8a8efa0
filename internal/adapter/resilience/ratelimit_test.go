package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/core/domain"
)

func TestRateLimiter_BurstAdmitsThenRejects(t *testing.T) {
	rl := NewRateLimiter("openai", 1, 3)

	for i := 0; i < 3; i++ {
		assert.NoError(t, rl.Allow(), "call %d should fit in the burst", i)
	}

	err := rl.Allow()
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindRateLimited, domain.KindOf(err))
	assert.Greater(t, domain.RetryAfterHint(err), time.Duration(0),
		"rejection must carry a retry-after hint")
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter("openai", 100, 1)

	require.NoError(t, rl.Allow())
	require.Error(t, rl.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.NoError(t, rl.Allow(), "a refilled token must admit the next call")
}

func TestRateLimiter_DefendsAgainstZeroConfig(t *testing.T) {
	rl := NewRateLimiter("openai", 0, 0)

	assert.NoError(t, rl.Allow(), "degenerate config must still admit one call")
	assert.Error(t, rl.Allow())
}

func TestRateLimiter_TokensReportsRemaining(t *testing.T) {
	rl := NewRateLimiter("openai", 1, 5)

	require.NoError(t, rl.Allow())
	assert.InDelta(t, 4.0, rl.Tokens(), 0.5)
}
