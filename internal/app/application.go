package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/keirav/manifold/internal/adapter/balancer"
	"github.com/keirav/manifold/internal/adapter/cache"
	"github.com/keirav/manifold/internal/adapter/opmode"
	"github.com/keirav/manifold/internal/adapter/provider"
	"github.com/keirav/manifold/internal/adapter/recovery"
	"github.com/keirav/manifold/internal/adapter/resilience"
	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/pkg/eventbus"
)

// Feature flag names resolved by the gateway and admin surface.
const (
	FlagResultCaching = "result_caching"
	FlagFanout        = "fanout"
)

// Application assembles every component and owns their lifecycles.
type Application struct {
	Config     *config.Config
	Balancer   *balancer.LoadBalancer
	Cache      *cache.TieredCache
	Resilience *resilience.Manager
	Recovery   *recovery.Engine
	Modes      *opmode.Controller
	Flags      *opmode.FlagRegistry
	Gateway    *Gateway
	HealthBus  *eventbus.EventBus[domain.HealthTransition]

	log    *logger.StyledLogger
	server *http.Server
}

func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	healthBus := eventbus.New[domain.HealthTransition]()
	lb := balancer.New(cfg.Balancer, healthBus, log)

	tiered, err := cache.New(cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("building cache: %w", err)
	}

	manager := resilience.NewManager(cfg.ResilienceFor, log)
	modes := opmode.New(cfg.OpMode.StatePath, log)

	flags := opmode.NewFlagRegistry(modes)
	flags.Register(opmode.FeatureFlag{
		Name:               FlagResultCaching,
		DisabledInModes:    []domain.OperationMode{domain.ModeEmergency},
		RequiresComponents: []string{"cache"},
	})
	flags.Register(opmode.FeatureFlag{
		Name:            FlagFanout,
		DisabledInModes: []domain.OperationMode{domain.ModeMaintenance},
	})

	engine := recovery.NewEngine(cfg.Recovery, log)
	engine.RegisterAction(recovery.NewCircuitResetAction(manager, nil, log))
	engine.RegisterAction(recovery.NewRedisReconnectAction(tiered, log))
	engine.RegisterAction(recovery.NewCacheRewarmAction(tiered, nil, log))

	clients, err := buildClients(cfg, manager, lb, log)
	if err != nil {
		return nil, err
	}

	gateway := NewGateway(GatewayConfig{
		Clients:  clients,
		CacheTTL: cfg.Cache.DefaultTTL,
	}, lb, tiered, modes, engine, log)

	app := &Application{
		Config:     cfg,
		Balancer:   lb,
		Cache:      tiered,
		Resilience: manager,
		Recovery:   engine,
		Modes:      modes,
		Flags:      flags,
		Gateway:    gateway,
		HealthBus:  healthBus,
		log:        log,
	}

	// Caching follows the result_caching flag whenever the mode or the
	// degradation set moves
	modes.OnChange(func(domain.ModeChange) {
		gateway.SetCaching(flags.Enabled(FlagResultCaching))
	})

	return app, nil
}

// buildClients turns provider configs into resilient clients, one pipeline
// per provider, and registers every served model with the balancer.
func buildClients(cfg *config.Config, manager *resilience.Manager, lb *balancer.LoadBalancer, log *logger.StyledLogger) (map[string]*ResilientClient, error) {
	factory := provider.NewFactory(log)

	byProvider := make(map[string]*ResilientClient, len(cfg.Providers))
	byModel := make(map[string]*ResilientClient)

	for _, pc := range cfg.Providers {
		adapter, err := factory.Create(pc)
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", pc.Name, err)
		}

		client := NewResilientClient(adapter, manager.PipelineFor(pc.Name, nil), lb, log)
		byProvider[pc.Name] = client

		weight := pc.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for _, model := range pc.Models {
			lb.RegisterModel(model, weight, pc.Capabilities)
			byModel[model] = client
		}
		log.InfoWithService("provider registered", pc.Name,
			"type", pc.Type, "models", len(pc.Models))
	}

	for name, sc := range cfg.Services {
		if sc.Fallback == "" {
			continue
		}
		primary, ok := byProvider[name]
		if !ok {
			continue
		}
		fb, ok := byProvider[sc.Fallback]
		if !ok {
			return nil, fmt.Errorf("service %s: fallback provider %s is not configured", name, sc.Fallback)
		}
		primary.SetFallback(fb)
	}

	return byModel, nil
}

// Start serves the HTTP surface until ctx is cancelled or the listener
// fails.
func (a *Application) Start(ctx context.Context) error {
	admin := NewAdminServer(a, a.log)

	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      admin.Routes(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", "addr", addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	config.Watch(a.applyConfig, func(err error) {
		a.log.Error("configuration reload failed", "error", err)
	})

	select {
	case <-ctx.Done():
		return a.Stop()
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop shuts the server down gracefully and releases component resources.
func (a *Application) Stop() error {
	a.log.Info("shutting down")

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.HealthBus.Shutdown()
	a.Modes.Events().Shutdown()
	return err
}

// applyConfig handles a hot reload. Only tunables that are safe to change
// on a live process apply; everything else needs a restart.
func (a *Application) applyConfig(next *config.Config) {
	if err := next.Validate(); err != nil {
		a.log.Error("reloaded configuration is invalid, keeping current", "error", err)
		return
	}

	if next.Logging.Level != a.Config.Logging.Level {
		logger.SetLevel(next.Logging.Level)
		a.log.Info("log level updated", "level", next.Logging.Level)
	}

	if next.Balancer.Strategy != a.Config.Balancer.Strategy {
		a.Balancer.SetStrategy(next.Balancer.Strategy)
		a.log.Info("balancer strategy updated",
			"from", a.Config.Balancer.Strategy, "to", next.Balancer.Strategy)
	}

	a.Config.Logging = next.Logging
	a.Config.Balancer = next.Balancer
	a.Config.Resilience = next.Resilience
	a.Config.Services = next.Services
	a.log.Info("configuration reloaded")
}
