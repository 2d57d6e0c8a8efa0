package provider

import (
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	TypeHTTP      = "http"
	TypeSimulated = "simulated"
)

// Factory builds provider adapters from configuration. Selection between
// simulated and real implementations is config-driven; nothing inspects
// runtime types.
type Factory struct {
	creators map[string]func(config.ProviderConfig, *logger.StyledLogger) (ports.Provider, error)
	log      *logger.StyledLogger
	mu       sync.RWMutex
}

func NewFactory(log *logger.StyledLogger) *Factory {
	f := &Factory{
		creators: make(map[string]func(config.ProviderConfig, *logger.StyledLogger) (ports.Provider, error)),
		log:      log,
	}

	f.Register(TypeHTTP, func(cfg config.ProviderConfig, log *logger.StyledLogger) (ports.Provider, error) {
		if cfg.URL == "" {
			return nil, fmt.Errorf("provider %s: http adapter needs a url", cfg.Name)
		}
		return NewHTTPProvider(cfg.Name, cfg.URL, cfg.APIKey, log), nil
	})
	f.Register(TypeSimulated, func(cfg config.ProviderConfig, _ *logger.StyledLogger) (ports.Provider, error) {
		return NewSimulated(cfg.Name, SimOptions{Latency: 50 * time.Millisecond}), nil
	})

	return f
}

func (f *Factory) Register(providerType string, creator func(config.ProviderConfig, *logger.StyledLogger) (ports.Provider, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[providerType] = creator
}

func (f *Factory) Create(cfg config.ProviderConfig) (ports.Provider, error) {
	f.mu.RLock()
	creator, exists := f.creators[cfg.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	return creator(cfg, f.log)
}

func (f *Factory) AvailableTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for name := range f.creators {
		types = append(types, name)
	}
	return types
}
