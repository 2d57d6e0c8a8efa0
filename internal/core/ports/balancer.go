package ports

import (
	"context"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
)

// SelectionRequest describes one routing decision.
type SelectionRequest struct {
	Capabilities  map[string]string
	Strategy      string
	Candidates    []string
	RequiredCount int
}

// ModelBalancer owns per-model metrics and routing. Selection and outcome
// recording are deliberately separate so the resilience pipeline can report
// results without knowing how routing works.
type ModelBalancer interface {
	RegisterModel(name string, weight float64, capabilities map[string]string)
	UnregisterModel(name string)
	ModelsForRequest(ctx context.Context, req SelectionRequest) ([]string, error)
	RecordSuccess(model string, latency time.Duration, tokens int)
	RecordError(model string, errorType string)
	// RecordRequestStart bumps the in-flight gauge; the returned func must
	// run exactly once on completion or cancellation.
	RecordRequestStart(model string) (done func())
	Snapshot() map[string]domain.ModelSnapshot
}
