package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

const stateChangeLogSize = 50

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	// IsExcluded marks errors that must not count as breaker failures
	// (caller mistakes, not downstream health signals). Nil excludes
	// nothing beyond the domain default.
	IsExcluded       func(error) bool
	Name             string
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

type StateChange struct {
	At     time.Time    `json:"at"`
	Reason string       `json:"reason"`
	From   BreakerState `json:"-"`
	To     BreakerState `json:"-"`
}

// BreakerStatus is a lock-free snapshot for observability surfaces.
type BreakerStatus struct {
	LastFailure   time.Time     `json:"last_failure"`
	LastSuccess   time.Time     `json:"last_success"`
	Name          string        `json:"name"`
	State         string        `json:"state"`
	StateChanges  []StateChange `json:"state_changes"`
	FailureCount  int64         `json:"failure_count"`
	SuccessCount  int64         `json:"success_count"`
	TotalRequests int64         `json:"total_requests"`
}

// CircuitBreaker is the per-service three-state machine. One instance is
// shared by every concurrent caller naming the service; all state moves
// under the mutex so threshold checks and transitions stay atomic.
type CircuitBreaker struct {
	changedAt         time.Time
	lastFailure       time.Time
	lastSuccess       time.Time
	now               func() time.Time
	log               *logger.StyledLogger
	cfg               BreakerConfig
	stateChanges      []StateChange
	failureCount      int64
	successCount      int64
	totalRequests     int64
	consecutiveFails  int64
	halfOpenSuccesses int
	state             BreakerState
	mu                sync.Mutex
}

func NewCircuitBreaker(cfg BreakerConfig, log *logger.StyledLogger) *CircuitBreaker {
	cb := &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
		log:   log,
	}
	cb.changedAt = cb.now()
	return cb
}

// Execute runs fn under the breaker. When the breaker is open and the
// recovery timeout has not elapsed, fn is never invoked and a circuit-open
// error returns immediately. The first call after the timeout becomes the
// half-open probe.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.cfg.RecoveryTimeout {
			return domain.NewProviderError(domain.ErrKindCircuitOpen, cb.cfg.Name, "",
				fmt.Errorf("%w: %s", ErrCircuitOpen, cb.cfg.Name))
		}
		cb.transition(StateHalfOpen, "recovery timeout elapsed, probing")
	case StateHalfOpen, StateClosed:
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	if err == nil {
		cb.recordSuccess()
		return
	}

	if cb.excluded(err) {
		// Caller-side errors say nothing about downstream health
		return
	}

	cb.recordFailure()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.successCount++
	cb.consecutiveFails = 0
	cb.lastSuccess = cb.now()

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.SuccessThreshold {
			cb.failureCount = 0
			cb.transition(StateClosed, "downstream recovered")
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen, "probe failed")
	case StateClosed:
		if cb.consecutiveFails >= int64(cb.cfg.FailureThreshold) {
			cb.transition(StateOpen, fmt.Sprintf("failure threshold reached (%d)", cb.cfg.FailureThreshold))
		}
	case StateOpen:
	}
}

func (cb *CircuitBreaker) excluded(err error) bool {
	if cb.cfg.IsExcluded != nil && cb.cfg.IsExcluded(err) {
		return true
	}
	return !domain.KindOf(err).CountsAgainstCircuit()
}

// transition must run with cb.mu held.
func (cb *CircuitBreaker) transition(to BreakerState, reason string) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.changedAt = cb.now()
	if to == StateHalfOpen {
		cb.halfOpenSuccesses = 0
	}

	cb.stateChanges = append(cb.stateChanges, StateChange{From: from, To: to, At: cb.changedAt, Reason: reason})
	if len(cb.stateChanges) > stateChangeLogSize {
		cb.stateChanges = cb.stateChanges[len(cb.stateChanges)-stateChangeLogSize:]
	}

	if cb.log != nil {
		cb.log.InfoWithService(fmt.Sprintf("circuit %s -> %s", from, to), cb.cfg.Name, "reason", reason)
	}
}

// Reset forces the breaker closed. Used by the admin surface and the
// circuit-reset recovery action after a health probe passes.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.consecutiveFails = 0
	cb.transition(StateClosed, "manual reset")
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	changes := make([]StateChange, len(cb.stateChanges))
	copy(changes, cb.stateChanges)

	return BreakerStatus{
		Name:          cb.cfg.Name,
		State:         cb.state.String(),
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		TotalRequests: cb.totalRequests,
		LastFailure:   cb.lastFailure,
		LastSuccess:   cb.lastSuccess,
		StateChanges:  changes,
	}
}
