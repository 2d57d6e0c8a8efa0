package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
)

// SimOptions scripts a simulated provider's behaviour. FailWith wins over
// FailureRate; a zero value yields an always-succeeding provider.
type SimOptions struct {
	// FailWith makes every call fail with this error when set.
	FailWith error
	// Latency is added to every call before it resolves.
	Latency time.Duration
	// FailureRate in [0,1] fails that fraction of calls with a server error.
	FailureRate float64
}

// Simulated stands in for a real provider in tests and local runs. It is
// selected by the factory exactly like a real adapter, behind the same
// interface.
type Simulated struct {
	failWith    error
	name        string
	calls       atomic.Int64
	latency     time.Duration
	failureRate float64
}

func NewSimulated(name string, opts SimOptions) *Simulated {
	return &Simulated{
		name:        name,
		latency:     opts.Latency,
		failureRate: opts.FailureRate,
		failWith:    opts.FailWith,
	}
}

var _ ports.Provider = (*Simulated)(nil)

func (s *Simulated) Name() string {
	return s.name
}

func (s *Simulated) Calls() int64 {
	return s.calls.Load()
}

func (s *Simulated) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	s.calls.Add(1)

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, domain.NewProviderError(domain.ErrKindTimeout, s.name, req.Model, ctx.Err())
		case <-timer.C:
		}
	}

	if s.failWith != nil {
		return nil, s.failWith
	}
	if s.failureRate > 0 && rand.Float64() < s.failureRate {
		return nil, domain.NewProviderError(domain.ErrKindServer, s.name, req.Model,
			errors.New("simulated server error"))
	}

	prompt := req.Prompt
	if len(prompt) > 40 {
		prompt = prompt[:40]
	}
	text := fmt.Sprintf("simulated completion for %q", prompt)

	return &domain.GenerateResponse{
		Text:         text,
		Model:        req.Model,
		Provider:     s.name,
		FinishReason: "stop",
		Usage: domain.TokenUsage{
			PromptTokens:     len(strings.Fields(req.Prompt)),
			CompletionTokens: len(strings.Fields(text)),
			TotalTokens:      len(strings.Fields(req.Prompt)) + len(strings.Fields(text)),
		},
		Latency: s.latency,
	}, nil
}
