package domain

import "time"

const (
	HealthStringUnknown   = "unknown"
	HealthStringHealthy   = "healthy"
	HealthStringDegraded  = "degraded"
	HealthStringUnhealthy = "unhealthy"
)

// ModelHealth is the balancer's classification of a model based on its
// recent error rate.
type ModelHealth string

const (
	HealthUnknown   ModelHealth = HealthStringUnknown
	HealthHealthy   ModelHealth = HealthStringHealthy
	HealthDegraded  ModelHealth = HealthStringDegraded
	HealthUnhealthy ModelHealth = HealthStringUnhealthy
)

func (h ModelHealth) String() string {
	return string(h)
}

// Routable reports whether the balancer may hand traffic to a model in
// this state under normal filtering.
func (h ModelHealth) Routable() bool {
	return h != HealthUnhealthy
}

// ModelSnapshot is a point-in-time copy of one model's metrics, safe to
// hand to observability surfaces without holding balancer locks.
type ModelSnapshot struct {
	LastSuccess        time.Time         `json:"last_success"`
	LastError          time.Time         `json:"last_error"`
	ErrorTypes         map[string]int64  `json:"error_types,omitempty"`
	Capabilities       map[string]string `json:"capabilities,omitempty"`
	Name               string            `json:"name"`
	Health             ModelHealth       `json:"health"`
	SuccessCount       int64             `json:"success_count"`
	ErrorCount         int64             `json:"error_count"`
	TotalRequests      int64             `json:"total_requests"`
	ConcurrentRequests int64             `json:"concurrent_requests"`
	TotalTokens        int64             `json:"total_tokens"`
	AvgLatencyMs       float64           `json:"avg_latency_ms"`
	SuccessRate        float64           `json:"success_rate"`
	BaseWeight         float64           `json:"base_weight"`
	DynamicWeight      float64           `json:"dynamic_weight"`
}

// HealthTransition is published on the event bus when a sweep reclassifies
// a model.
type HealthTransition struct {
	Model string
	From  ModelHealth
	To    ModelHealth
}
