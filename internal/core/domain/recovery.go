package domain

import "time"

// RecoveryContext carries everything a recovery action needs to act on a
// named failure.
type RecoveryContext struct {
	Metadata    map[string]interface{}
	ServiceName string
	ErrorType   string
	Component   string
}

// RecoveryID keys active-recovery deduplication: one live recovery per
// (error type, service) pair.
func (c RecoveryContext) RecoveryID() string {
	return c.ErrorType + ":" + c.ServiceName
}

// ActionResult records one action's outcome inside a recovery attempt.
type ActionResult struct {
	Action  string `json:"action"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// RecoveryAttempt is one pass over the matching actions.
type RecoveryAttempt struct {
	StartedAt time.Time      `json:"started_at"`
	Actions   []ActionResult `json:"actions"`
}

// RecoveryRecord is the append-only history entry for one workflow run.
type RecoveryRecord struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	RecoveryID string            `json:"recovery_id"`
	ErrorType  string            `json:"error_type"`
	Service    string            `json:"service"`
	Attempts   []RecoveryAttempt `json:"attempts"`
	Success    bool              `json:"success"`
}
