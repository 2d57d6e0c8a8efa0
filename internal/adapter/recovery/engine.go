// Package recovery runs automated remediation workflows for named component
// failures. Actions are pluggable; the engine handles deduplication,
// attempt budgets and history.
package recovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/internal/util"
)

const defaultHistorySize = 100

// Engine coordinates recovery workflows. One workflow runs at a time per
// (error type, service) pair; concurrent duplicates are suppressed rather
// than queued, because a second run of the same repair has nothing to add
// while the first is still in flight.
type Engine struct {
	log         *logger.StyledLogger
	active      map[string]struct{}
	actions     []ports.RecoveryAction
	history     []domain.RecoveryRecord
	cfg         config.RecoveryConfig
	mu          sync.Mutex
	started     atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	suppressed  atomic.Int64
	historySize int
}

// Stats is a point-in-time summary of engine activity.
type Stats struct {
	Started    int64 `json:"started"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Suppressed int64 `json:"suppressed"`
	Active     int   `json:"active"`
	Actions    int   `json:"actions"`
}

func NewEngine(cfg config.RecoveryConfig, log *logger.StyledLogger) *Engine {
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	return &Engine{
		cfg:         cfg,
		log:         log,
		active:      make(map[string]struct{}),
		historySize: size,
	}
}

// RegisterAction adds an action to the workflow. Actions are consulted in
// registration order on every pass.
func (e *Engine) RegisterAction(action ports.RecoveryAction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
}

// HandleFailure runs the recovery workflow for the given failure and reports
// whether any action succeeded. A workflow already in flight for the same
// recovery ID suppresses this call immediately with false.
func (e *Engine) HandleFailure(ctx context.Context, errorType string, rctx domain.RecoveryContext) bool {
	if rctx.ErrorType == "" {
		rctx.ErrorType = errorType
	}
	id := rctx.RecoveryID()

	e.mu.Lock()
	if _, inFlight := e.active[id]; inFlight {
		e.mu.Unlock()
		e.suppressed.Add(1)
		e.log.Debug("recovery already in flight, suppressing", "recovery_id", id)
		return false
	}
	e.active[id] = struct{}{}
	matching := e.matchingLocked(errorType, rctx)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	if len(matching) == 0 {
		e.log.Debug("no recovery action matches failure",
			"recovery_id", id, "error_type", errorType)
		return false
	}

	e.started.Add(1)
	e.log.InfoWithService("starting recovery workflow", rctx.ServiceName,
		"recovery_id", id, "error_type", errorType, "actions", len(matching))

	record := domain.RecoveryRecord{
		RecoveryID: id,
		ErrorType:  errorType,
		Service:    rctx.ServiceName,
		StartedAt:  time.Now(),
	}

	success := e.runAttempts(ctx, rctx, matching, &record)
	record.FinishedAt = time.Now()
	record.Success = success
	e.appendHistory(record)

	if success {
		e.succeeded.Add(1)
		e.log.InfoWithService("recovery workflow succeeded", rctx.ServiceName,
			"recovery_id", id, "attempts", len(record.Attempts))
	} else {
		e.failed.Add(1)
		e.log.WarnWithService("recovery workflow exhausted", rctx.ServiceName,
			"recovery_id", id, "attempts", len(record.Attempts))
	}
	return success
}

func (e *Engine) runAttempts(ctx context.Context, rctx domain.RecoveryContext, actions []ports.RecoveryAction, record *domain.RecoveryRecord) bool {
	maxAttempts := e.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	deadline := time.Time{}
	if e.cfg.Timeout > 0 {
		deadline = record.StartedAt.Add(e.cfg.Timeout)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			e.log.Warn("recovery workflow aborted on timeout",
				"recovery_id", record.RecoveryID, "attempt", attempt)
			return false
		}
		if attempt > 0 && e.cfg.Interval > 0 {
			if !util.SleepContext(ctx.Done(), e.cfg.Interval) {
				return false
			}
		}

		pass := domain.RecoveryAttempt{StartedAt: time.Now()}
		for _, action := range actions {
			result := domain.ActionResult{Action: action.Name()}
			if err := action.Execute(ctx, rctx); err != nil {
				result.Error = err.Error()
				e.log.Debug("recovery action failed",
					"recovery_id", record.RecoveryID, "action", action.Name(), "error", err)
			} else {
				result.Success = true
			}
			pass.Actions = append(pass.Actions, result)
			if result.Success {
				record.Attempts = append(record.Attempts, pass)
				return true
			}
		}
		record.Attempts = append(record.Attempts, pass)
	}
	return false
}

func (e *Engine) matchingLocked(errorType string, rctx domain.RecoveryContext) []ports.RecoveryAction {
	var out []ports.RecoveryAction
	for _, action := range e.actions {
		if action.CanRecover(errorType, rctx) {
			out = append(out, action)
		}
	}
	return out
}

func (e *Engine) appendHistory(record domain.RecoveryRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, record)
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
}

// History returns recent workflow records, newest last. An empty service
// filter returns everything.
func (e *Engine) History(service string) []domain.RecoveryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.RecoveryRecord, 0, len(e.history))
	for _, rec := range e.history {
		if service == "" || rec.Service == service {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := len(e.active)
	actions := len(e.actions)
	e.mu.Unlock()

	return Stats{
		Started:    e.started.Load(),
		Succeeded:  e.succeeded.Load(),
		Failed:     e.failed.Load(),
		Suppressed: e.suppressed.Load(),
		Active:     active,
		Actions:    actions,
	}
}
