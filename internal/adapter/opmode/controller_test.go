package opmode

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/theme"
)

func newTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "opmode.json"), newTestLogger())
}

func TestController_StartsNormal(t *testing.T) {
	c := newTestController(t)
	assert.Equal(t, domain.ModeNormal, c.Mode())
	assert.Empty(t, c.Degraded())
}

func TestController_SeverityDerivation(t *testing.T) {
	tests := []struct {
		name     string
		severity domain.Severity
		want     domain.OperationMode
	}{
		{"low stays normal", domain.SeverityLow, domain.ModeNormal},
		{"medium degrades", domain.SeverityMedium, domain.ModeDegraded},
		{"high is an emergency", domain.SeverityHigh, domain.ModeEmergency},
		{"critical is an emergency", domain.SeverityCritical, domain.ModeEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t)
			c.MarkDegraded("cache", "trouble", tt.severity, nil)
			assert.Equal(t, tt.want, c.Mode())
		})
	}
}

func TestController_WorstSeverityWins(t *testing.T) {
	c := newTestController(t)

	c.MarkDegraded("cache", "slow", domain.SeverityMedium, nil)
	require.Equal(t, domain.ModeDegraded, c.Mode())

	c.MarkDegraded("openai", "down", domain.SeverityCritical, nil)
	assert.Equal(t, domain.ModeEmergency, c.Mode())

	c.MarkNormal("openai")
	assert.Equal(t, domain.ModeDegraded, c.Mode(), "clearing the critical component falls back to the medium one")

	c.MarkNormal("cache")
	assert.Equal(t, domain.ModeNormal, c.Mode())
}

func TestController_MaintenancePinsTheMode(t *testing.T) {
	c := newTestController(t)

	c.SetMaintenance(true)
	assert.Equal(t, domain.ModeMaintenance, c.Mode())

	c.MarkDegraded("openai", "down", domain.SeverityCritical, nil)
	assert.Equal(t, domain.ModeMaintenance, c.Mode(), "derivation is suspended during maintenance")

	c.SetMaintenance(false)
	assert.Equal(t, domain.ModeEmergency, c.Mode(), "lifting maintenance re-derives from live degradations")
}

func TestController_ListenersSeeTransitions(t *testing.T) {
	c := newTestController(t)

	var changes []domain.ModeChange
	c.OnChange(func(change domain.ModeChange) { changes = append(changes, change) })

	c.MarkDegraded("cache", "slow", domain.SeverityMedium, nil)
	c.MarkDegraded("cache", "still slow", domain.SeverityMedium, nil)
	c.MarkNormal("cache")

	require.Len(t, changes, 2, "re-marking the same mode must not re-notify")
	assert.Equal(t, domain.ModeNormal, changes[0].From)
	assert.Equal(t, domain.ModeDegraded, changes[0].To)
	assert.Contains(t, changes[0].Degraded, "cache")
	assert.Equal(t, domain.ModeDegraded, changes[1].From)
	assert.Equal(t, domain.ModeNormal, changes[1].To)
}

func TestController_PanickingListenerIsContained(t *testing.T) {
	c := newTestController(t)

	c.OnChange(func(domain.ModeChange) { panic("bad listener") })
	sawChange := false
	c.OnChange(func(domain.ModeChange) { sawChange = true })

	assert.NotPanics(t, func() {
		c.MarkDegraded("cache", "slow", domain.SeverityMedium, nil)
	})
	assert.True(t, sawChange, "a broken listener must not starve the others")
	assert.Equal(t, domain.ModeDegraded, c.Mode())
}

func TestController_ChangesPublishedOnBus(t *testing.T) {
	c := newTestController(t)

	events, unsubscribe := c.Events().Subscribe(t.Context())
	defer unsubscribe()

	c.MarkDegraded("openai", "down", domain.SeverityHigh, nil)

	select {
	case change := <-events:
		assert.Equal(t, domain.ModeEmergency, change.To)
	case <-time.After(time.Second):
		t.Fatal("no mode change published")
	}
}

func TestController_StatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opmode.json")

	first := New(path, newTestLogger())
	first.MarkDegraded("openai", "down", domain.SeverityHigh, map[string]string{"region": "us"})
	require.Equal(t, domain.ModeEmergency, first.Mode())

	second := New(path, newTestLogger())
	assert.Equal(t, domain.ModeEmergency, second.Mode())

	degraded := second.Degraded()
	require.Contains(t, degraded, "openai")
	assert.Equal(t, domain.SeverityHigh, degraded["openai"].Severity)
	assert.Equal(t, "us", degraded["openai"].Details["region"])
}

func TestController_PersistedModeMatchesLiveMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opmode.json")

	first := New(path, newTestLogger())
	first.MarkDegraded("openai", "down", domain.SeverityCritical, nil)
	require.Equal(t, domain.ModeEmergency, first.Mode())

	// The state file must reflect the mode the transition produced, not
	// the one it left behind
	assert.Equal(t, domain.ModeEmergency, New(path, newTestLogger()).Mode())

	first.MarkNormal("openai")
	assert.Equal(t, domain.ModeNormal, New(path, newTestLogger()).Mode())
}

func TestController_DegradedSetPersistsWithoutModeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opmode.json")

	first := New(path, newTestLogger())
	first.MarkDegraded("cache", "slow", domain.SeverityMedium, nil)
	first.MarkDegraded("redis", "flapping", domain.SeverityMedium, nil)
	require.Equal(t, domain.ModeDegraded, first.Mode())

	second := New(path, newTestLogger())
	assert.Equal(t, domain.ModeDegraded, second.Mode())
	degraded := second.Degraded()
	assert.Contains(t, degraded, "cache")
	assert.Contains(t, degraded, "redis")
}

func TestController_CorruptStateStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opmode.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(path, newTestLogger())
	assert.Equal(t, domain.ModeNormal, c.Mode())
}

func TestController_EmptyStatePathDisablesPersistence(t *testing.T) {
	c := New("", newTestLogger())
	assert.NotPanics(t, func() {
		c.MarkDegraded("cache", "slow", domain.SeverityMedium, nil)
	})
	assert.Equal(t, domain.ModeDegraded, c.Mode())
}
