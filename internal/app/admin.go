package app

import (
	"io"
	"net/http"
	"time"

	"github.com/keirav/manifold/internal/adapter/resilience"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/pkg/format"
)

const maxRequestBytes = 1 << 20

// AdminServer exposes the operational surface: generation, breaker and
// balancer state, cache metrics, recovery history, operation mode.
type AdminServer struct {
	gateway    *Gateway
	resilience *resilience.Manager
	app        *Application
	log        *logger.StyledLogger
	startedAt  time.Time
}

func NewAdminServer(application *Application, log *logger.StyledLogger) *AdminServer {
	return &AdminServer{
		gateway:    application.Gateway,
		resilience: application.Resilience,
		app:        application,
		log:        log,
		startedAt:  time.Now(),
	}
}

func (s *AdminServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("GET /internal/health", s.handleHealth)
	mux.HandleFunc("GET /internal/status/breakers", s.handleBreakers)
	mux.HandleFunc("POST /internal/breakers/{service}/reset", s.handleBreakerReset)
	mux.HandleFunc("GET /internal/status/models", s.handleModels)
	mux.HandleFunc("GET /internal/status/cache", s.handleCacheStatus)
	mux.HandleFunc("POST /internal/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /internal/recovery/history", s.handleRecoveryHistory)
	mux.HandleFunc("GET /internal/recovery/stats", s.handleRecoveryStats)
	mux.HandleFunc("POST /internal/recovery/trigger", s.handleRecoveryTrigger)
	mux.HandleFunc("GET /internal/status/opmode", s.handleOpMode)
	mux.HandleFunc("POST /internal/opmode/maintenance", s.handleMaintenance)

	return mux
}

func (s *AdminServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.app.Flags.Enabled(FlagFanout) {
		s.writeError(w, http.StatusServiceUnavailable, "generation is disabled in the current operation mode")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var req domain.FanoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	result, err := s.gateway.Handle(r.Context(), req)
	if err != nil {
		s.log.Warn("fan-out request failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mode := s.app.Modes.Mode()
	status := http.StatusOK
	if mode == domain.ModeEmergency {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status": "up",
		"mode":   mode.String(),
		"uptime": format.Duration(time.Since(s.startedAt)),
		"time":   time.Now().UTC(),
	})
}

func (s *AdminServer) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.resilience.Statuses())
}

func (s *AdminServer) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if !s.resilience.Reset(service) {
		s.writeError(w, http.StatusNotFound, "no breaker for service "+service)
		return
	}
	s.log.InfoWithService("breaker reset via admin surface", service)
	s.writeJSON(w, http.StatusOK, map[string]string{"service": service, "state": "closed"})
}

func (s *AdminServer) handleModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Balancer.Snapshot())
}

func (s *AdminServer) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.app.Cache.Metrics()

	hitRates := make(map[string]string, len(metrics))
	for level, m := range metrics {
		if total := m.Hits + m.Misses; total > 0 {
			hitRates[string(level)] = format.Percent(float64(m.Hits) / float64(total))
		} else {
			hitRates[string(level)] = format.Percent(0)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sizes":     s.app.Cache.Sizes(r.Context()),
		"metrics":   metrics,
		"hit_rates": hitRates,
	})
}

func (s *AdminServer) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Cache.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("cache cleared via admin surface")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *AdminServer) handleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	s.writeJSON(w, http.StatusOK, s.app.Recovery.History(service))
}

func (s *AdminServer) handleRecoveryStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Recovery.Stats())
}

func (s *AdminServer) handleRecoveryTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var trigger struct {
		ErrorType string `json:"error_type"`
		Service   string `json:"service"`
		Component string `json:"component"`
	}
	if err := json.Unmarshal(body, &trigger); err != nil || trigger.ErrorType == "" || trigger.Service == "" {
		s.writeError(w, http.StatusBadRequest, "error_type and service are required")
		return
	}

	started := s.app.Recovery.HandleFailure(r.Context(), trigger.ErrorType, domain.RecoveryContext{
		ServiceName: trigger.Service,
		Component:   trigger.Component,
		ErrorType:   trigger.ErrorType,
	})
	s.writeJSON(w, http.StatusOK, map[string]bool{"recovered": started})
}

func (s *AdminServer) handleOpMode(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":     s.app.Modes.Mode().String(),
		"degraded": s.app.Modes.Degraded(),
		"flags":    s.app.Flags.Snapshot(),
	})
}

func (s *AdminServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	on := r.URL.Query().Get("on") == "true"
	s.app.Modes.SetMaintenance(on)
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": s.app.Modes.Mode().String()})
}

func (s *AdminServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding admin response", "error", err)
	}
}

func (s *AdminServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
