package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider and resilience failures into a stable
// vocabulary that routing, retry and aggregation logic can branch on
// regardless of which provider produced the failure.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindAuth
	ErrKindRateLimited
	ErrKindModelNotFound
	ErrKindTimeout
	ErrKindNetwork
	ErrKindServer
	ErrKindValidation
	ErrKindCircuitOpen
	ErrKindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindAuth:
		return "authentication_failed"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindModelNotFound:
		return "model_not_found"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindNetwork:
		return "network_error"
	case ErrKindServer:
		return "server_error"
	case ErrKindValidation:
		return "validation_error"
	case ErrKindCircuitOpen:
		return "circuit_open"
	case ErrKindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind is worth retrying.
// Auth, validation and model-not-found are configuration problems; retrying
// them only burns quota. Circuit-open fails fast so a fallback can run.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindRateLimited, ErrKindTimeout, ErrKindNetwork, ErrKindServer, ErrKindUnknown:
		return true
	default:
		return false
	}
}

// CountsAgainstCircuit reports whether the failure should feed the owning
// service's circuit breaker failure count.
func (k ErrorKind) CountsAgainstCircuit() bool {
	switch k {
	case ErrKindRateLimited, ErrKindTimeout, ErrKindNetwork, ErrKindServer, ErrKindUnknown:
		return true
	default:
		return false
	}
}

// ProviderError is the typed failure every provider adapter raises and the
// resilient client re-tags with model/provider identity before it leaves
// the resilience layer.
type ProviderError struct {
	Err        error
	Provider   string
	Model      string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: model %q via %s: %v", e.Kind, e.Model, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: provider %s: %v", e.Kind, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(kind ErrorKind, provider, model string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Model: model, Err: err}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Errors that carry no kind classify as unknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindUnknown
}

// RetryAfterHint returns the provider-supplied retry-after hint if the
// error carries one, zero otherwise.
func RetryAfterHint(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

type ErrModelNotRegistered struct {
	Model string
}

func (e *ErrModelNotRegistered) Error() string {
	return fmt.Sprintf("model not registered: %s", e.Model)
}

// AggregateError is returned when every model in a fan-out failed.
type AggregateError struct {
	Failures map[string]error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("all %d models failed", len(e.Failures))
}
