package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/adapter/provider"
	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
)

// newTestApplication builds a full application over a simulated provider.
func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Cache.DiskEnabled = false
	cfg.OpMode.StatePath = filepath.Join(t.TempDir(), "opmode.json")
	cfg.Providers = []config.ProviderConfig{
		{Name: "sim", Type: provider.TypeSimulated, Models: []string{"model-x"}},
	}

	application, err := New(cfg, newTestLogger())
	require.NoError(t, err)
	return application
}

func doRequest(t *testing.T, app *Application, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	admin := NewAdminServer(app, newTestLogger())
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	admin.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAdmin_GenerateEndToEnd(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodPost, "/v1/generate", `{"prompt": "hi", "required_count": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.FanoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.Responses, "model-x")
}

func TestAdmin_GenerateRejectsBadBodies(t *testing.T) {
	app := newTestApplication(t)

	assert.Equal(t, http.StatusBadRequest,
		doRequest(t, app, http.MethodPost, "/v1/generate", "{not json").Code)
	assert.Equal(t, http.StatusBadRequest,
		doRequest(t, app, http.MethodPost, "/v1/generate", `{"prompt": ""}`).Code)
}

func TestAdmin_HealthReflectsMode(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodGet, "/internal/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	app.Modes.MarkDegraded("sim", "down", domain.SeverityCritical, nil)
	rec = doRequest(t, app, http.MethodGet, "/internal/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "emergency mode fails the health probe")
}

func TestAdmin_BreakerResetRoute(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodPost, "/internal/breakers/sim/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, app, http.MethodPost, "/internal/breakers/ghost/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_StatusSurfaces(t *testing.T) {
	app := newTestApplication(t)

	for _, path := range []string{
		"/internal/status/breakers",
		"/internal/status/models",
		"/internal/status/cache",
		"/internal/status/opmode",
		"/internal/recovery/history",
		"/internal/recovery/stats",
	} {
		rec := doRequest(t, app, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}
}

func TestAdmin_CacheStatusIncludesHitRates(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodGet, "/internal/status/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		HitRates map[string]string `json:"hit_rates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Contains(t, status.HitRates, "memory")
}

func TestAdmin_RecoveryTriggerValidatesInput(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodPost, "/internal/recovery/trigger", `{"error_type": "circuit_open"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "service is required")

	rec = doRequest(t, app, http.MethodPost, "/internal/recovery/trigger",
		`{"error_type": "circuit_open", "service": "ghost", "component": "provider"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result["recovered"], "no breaker exists for an unknown service")
}

func TestAdmin_MaintenanceDisablesGeneration(t *testing.T) {
	app := newTestApplication(t)
	app.Modes.SetMaintenance(true)

	rec := doRequest(t, app, http.MethodPost, "/v1/generate", `{"prompt": "hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdmin_MaintenanceToggle(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app, http.MethodPost, "/internal/opmode/maintenance?on=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ModeMaintenance, app.Modes.Mode())

	rec = doRequest(t, app, http.MethodPost, "/internal/opmode/maintenance?on=false", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ModeNormal, app.Modes.Mode())
}
