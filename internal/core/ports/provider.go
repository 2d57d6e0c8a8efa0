package ports

import (
	"context"

	"github.com/keirav/manifold/internal/core/domain"
)

// Provider is the contract every LLM provider integration satisfies.
// Generate returns a response or a typed *domain.ProviderError; it must
// never populate both.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error)
}

// GenerateFunc adapts a bare function to the Provider interface for tests
// and fallbacks.
type GenerateFunc func(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error)

type funcProvider struct {
	fn   GenerateFunc
	name string
}

func (p *funcProvider) Name() string {
	return p.name
}

func (p *funcProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	return p.fn(ctx, req)
}

func ProviderFunc(name string, fn GenerateFunc) Provider {
	return &funcProvider{name: name, fn: fn}
}
