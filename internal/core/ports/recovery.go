package ports

import (
	"context"

	"github.com/keirav/manifold/internal/core/domain"
)

// RecoveryAction is one pluggable remediation step. CanRecover filters by
// failure shape; Execute performs the repair and reports success via a nil
// error.
type RecoveryAction interface {
	Name() string
	CanRecover(errorType string, rctx domain.RecoveryContext) bool
	Execute(ctx context.Context, rctx domain.RecoveryContext) error
}
