package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/keirav/manifold/internal/adapter/opmode"
	"github.com/keirav/manifold/internal/adapter/recovery"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	fanoutNamespace      = "fanout"
	defaultRequiredCount = 1
)

// Gateway orchestrates one prompt across several models: route, check the
// cache, fan out, aggregate, feed health signals back into the system.
type Gateway struct {
	clients   map[string]*ResilientClient
	balancer  ports.ModelBalancer
	cache     ports.Cache
	modes     *opmode.Controller
	recovery  *recovery.Engine
	log       *logger.StyledLogger
	cacheTTL  time.Duration
	cacheMu   sync.RWMutex
	cacheable bool
}

type GatewayConfig struct {
	// Clients maps model name to the client that serves it.
	Clients  map[string]*ResilientClient
	CacheTTL time.Duration
}

func NewGateway(cfg GatewayConfig, balancer ports.ModelBalancer, cache ports.Cache, modes *opmode.Controller, engine *recovery.Engine, log *logger.StyledLogger) *Gateway {
	return &Gateway{
		clients:   cfg.Clients,
		balancer:  balancer,
		cache:     cache,
		modes:     modes,
		recovery:  engine,
		log:       log,
		cacheTTL:  cfg.CacheTTL,
		cacheable: cache != nil,
	}
}

// SetCaching toggles result caching at runtime, used when the cache
// component is marked degraded.
func (g *Gateway) SetCaching(on bool) {
	g.cacheMu.Lock()
	g.cacheable = on && g.cache != nil
	g.cacheMu.Unlock()
}

func (g *Gateway) cachingEnabled() bool {
	g.cacheMu.RLock()
	defer g.cacheMu.RUnlock()
	return g.cacheable
}

// Handle runs one fan-out request. At least one model answering makes the
// request a success; only a full wipeout returns an error.
func (g *Gateway) Handle(ctx context.Context, req domain.FanoutRequest) (*domain.FanoutResult, error) {
	requestID := uuid.NewString()
	log := g.log.WithRequestID(requestID)

	count := req.RequiredCount
	if count <= 0 {
		count = defaultRequiredCount
	}

	candidates := make([]string, 0, len(g.clients))
	for model := range g.clients {
		candidates = append(candidates, model)
	}
	sort.Strings(candidates)

	models, err := g.balancer.ModelsForRequest(ctx, ports.SelectionRequest{
		Candidates:    candidates,
		RequiredCount: count,
		Strategy:      req.Strategy,
		Capabilities:  req.Capabilities,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting models: %w", err)
	}
	log.Debug("models selected for fan-out", "models", models, "strategy", req.Strategy)

	fingerprint := requestFingerprint(req.Prompt, models, req.Options)
	if g.cachingEnabled() {
		if cached, ok := g.lookupCache(ctx, fingerprint, requestID, log); ok {
			return cached, nil
		}
	}

	result := g.fanOut(ctx, requestID, models, req, log)

	if len(result.Responses) == 0 {
		failures := make(map[string]error, len(result.Failures))
		for model, msg := range result.Failures {
			failures[model] = fmt.Errorf("%s", msg)
		}
		return nil, &domain.AggregateError{Failures: failures}
	}

	if g.cachingEnabled() {
		g.storeCache(ctx, fingerprint, result, log)
	}
	return result, nil
}

func (g *Gateway) fanOut(ctx context.Context, requestID string, models []string, req domain.FanoutRequest, log *logger.StyledLogger) *domain.FanoutResult {
	result := &domain.FanoutResult{
		RequestID: requestID,
		Responses: make(map[string]*domain.GenerateResponse, len(models)),
		Failures:  make(map[string]string),
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for _, model := range models {
		client, ok := g.clients[model]
		if !ok {
			mu.Lock()
			result.Failures[model] = (&domain.ErrModelNotRegistered{Model: model}).Error()
			mu.Unlock()
			continue
		}

		eg.Go(func() error {
			resp, err := client.Generate(egCtx, domain.GenerateRequest{
				Prompt:  req.Prompt,
				Model:   model,
				Options: req.Options,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[model] = err.Error()
				g.reportFailure(model, client.Provider(), err)
				return nil
			}
			result.Responses[model] = resp
			g.modes.MarkNormal(client.Provider())
			return nil
		})
	}

	_ = eg.Wait() //nolint:errcheck // goroutines report through result, never the group

	log.InfoWithCount("fan-out completed", len(result.Responses),
		"failed", len(result.Failures), "models", len(models))
	return result
}

// reportFailure feeds one model failure into operation mode and, for
// circuit-open conditions, kicks off a recovery workflow.
func (g *Gateway) reportFailure(model, provider string, err error) {
	kind := domain.KindOf(err)

	switch kind {
	case domain.ErrKindUnavailable, domain.ErrKindCircuitOpen:
		g.modes.MarkDegraded(provider, "provider unavailable", domain.SeverityMedium,
			map[string]string{"model": model, "error": err.Error()})
		if g.recovery != nil {
			go g.recovery.HandleFailure(context.Background(), domain.ErrKindCircuitOpen.String(), domain.RecoveryContext{
				ServiceName: provider,
				Component:   "provider",
				ErrorType:   domain.ErrKindCircuitOpen.String(),
				Metadata:    map[string]interface{}{"model": model},
			})
		}
	case domain.ErrKindAuth:
		g.modes.MarkDegraded(provider, "provider authentication failing", domain.SeverityHigh,
			map[string]string{"model": model})
	}
}

func (g *Gateway) lookupCache(ctx context.Context, fingerprint, requestID string, log *logger.StyledLogger) (*domain.FanoutResult, bool) {
	data, hit, err := g.cache.Get(ctx, fingerprint, fanoutNamespace)
	if err != nil || !hit {
		return nil, false
	}

	var cached domain.FanoutResult
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Warn("cached fan-out result is corrupt, ignoring", "error", err)
		return nil, false
	}

	cached.RequestID = requestID
	cached.FromCache = true
	log.Debug("fan-out served from cache", "models", len(cached.Responses))
	return &cached, true
}

func (g *Gateway) storeCache(ctx context.Context, fingerprint string, result *domain.FanoutResult, log *logger.StyledLogger) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Warn("encoding fan-out result for cache", "error", err)
		return
	}
	if err := g.cache.Put(ctx, fingerprint, data, fanoutNamespace, g.cacheTTL, nil); err != nil {
		log.Warn("caching fan-out result", "error", err)
	}
}

// requestFingerprint derives the cache key for a fan-out: the prompt, the
// sorted model set and the options in key order. Two requests that would
// produce the same fan-out share a fingerprint.
func requestFingerprint(prompt string, models []string, options map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})

	sorted := make([]string, len(models))
	copy(sorted, models)
	sort.Strings(sorted)
	for _, m := range sorted {
		h.Write([]byte(m))
		h.Write([]byte{0})
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		if v, err := json.Marshal(options[k]); err == nil {
			h.Write(v)
		}
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
