package domain

import "time"

// OperationMode is the process-wide health posture derived from component
// degradation signals.
type OperationMode string

const (
	ModeNormal      OperationMode = "normal"
	ModeDegraded    OperationMode = "degraded"
	ModeEmergency   OperationMode = "emergency"
	ModeMaintenance OperationMode = "maintenance"
)

func (m OperationMode) String() string {
	return string(m)
}

// Severity ranks how badly a component is degraded.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

// DegradationReason records why a component was marked degraded.
type DegradationReason struct {
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
	Component string            `json:"component"`
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
}

// ModeChange is delivered to operation-mode listeners and the event bus.
type ModeChange struct {
	Degraded map[string]DegradationReason
	From     OperationMode
	To       OperationMode
}
