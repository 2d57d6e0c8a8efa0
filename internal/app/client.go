package app

import (
	"context"
	"errors"
	"time"

	"github.com/keirav/manifold/internal/adapter/resilience"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
)

// ResilientClient wraps one provider adapter with a resilience pipeline and
// feeds every outcome back to the balancer. It is the only path through
// which the gateway talks to a provider.
type ResilientClient struct {
	provider ports.Provider
	pipeline *resilience.Pipeline
	balancer ports.ModelBalancer
	fallback *ResilientClient
	log      *logger.StyledLogger
}

func NewResilientClient(provider ports.Provider, pipeline *resilience.Pipeline, balancer ports.ModelBalancer, log *logger.StyledLogger) *ResilientClient {
	return &ResilientClient{
		provider: provider,
		pipeline: pipeline,
		balancer: balancer,
		log:      log,
	}
}

// SetFallback chains a secondary client used when the primary's terminal
// error is circuit-open or unavailable. The fallback runs its own pipeline
// and records its own balancer outcomes.
func (c *ResilientClient) SetFallback(fb *ResilientClient) {
	c.fallback = fb
}

func (c *ResilientClient) Provider() string {
	return c.provider.Name()
}

// Generate runs one inference call through the pipeline. The in-flight
// gauge is balanced even when the context is cancelled mid-call; errors
// leave tagged with the model and provider that failed.
func (c *ResilientClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	done := c.balancer.RecordRequestStart(req.Model)
	defer done()

	var resp *domain.GenerateResponse
	op := func(ctx context.Context) error {
		r, err := c.provider.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	var fb *resilience.Fallback
	if c.fallback != nil {
		fb = &resilience.Fallback{
			Name: c.fallback.Provider(),
			Run: func(ctx context.Context) error {
				r, err := c.fallback.Generate(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			},
		}
	}

	start := time.Now()
	if err := c.pipeline.ExecuteWithFallback(ctx, op, fb); err != nil {
		tagged := c.tagError(err, req.Model)
		c.balancer.RecordError(req.Model, domain.KindOf(tagged).String())
		return nil, tagged
	}

	// A fallback-produced response was already recorded by the fallback
	// client against its own model
	if resp.Provider == c.provider.Name() {
		c.balancer.RecordSuccess(req.Model, time.Since(start), resp.Usage.TotalTokens)
	}
	return resp, nil
}

// tagError normalizes terminal pipeline errors into model-scoped domain
// errors: circuit-open becomes unavailable, bare deadline errors become
// timeouts, everything else keeps its kind but gains model identity.
func (c *ResilientClient) tagError(err error, model string) error {
	kind := domain.KindOf(err)
	switch {
	case kind == domain.ErrKindCircuitOpen:
		kind = domain.ErrKindUnavailable
	case kind == domain.ErrKindUnknown && errors.Is(err, context.DeadlineExceeded):
		kind = domain.ErrKindTimeout
	}

	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Kind == kind && pe.Model == model {
		return err
	}
	return domain.NewProviderError(kind, c.provider.Name(), model, err)
}
