package opmode

import (
	"sync"

	"github.com/keirav/manifold/internal/core/domain"
)

// FeatureFlag gates a capability on operation mode and component health.
type FeatureFlag struct {
	Name               string
	DisabledInModes    []domain.OperationMode
	RequiresComponents []string
}

// FlagRegistry resolves feature flags against the live controller state.
// A manual override beats every derived condition, in both directions.
type FlagRegistry struct {
	controller *Controller
	flags      map[string]FeatureFlag
	overrides  map[string]bool
	mu         sync.RWMutex
}

func NewFlagRegistry(controller *Controller) *FlagRegistry {
	return &FlagRegistry{
		controller: controller,
		flags:      make(map[string]FeatureFlag),
		overrides:  make(map[string]bool),
	}
}

func (r *FlagRegistry) Register(flag FeatureFlag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[flag.Name] = flag
}

// SetOverride forces a flag on or off regardless of mode and health.
func (r *FlagRegistry) SetOverride(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = enabled
}

func (r *FlagRegistry) ClearOverride(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, name)
}

// Enabled reports whether the named flag is currently on. Unregistered
// flags are off.
func (r *FlagRegistry) Enabled(name string) bool {
	r.mu.RLock()
	flag, known := r.flags[name]
	override, overridden := r.overrides[name]
	r.mu.RUnlock()

	if !known {
		return false
	}
	if overridden {
		return override
	}

	mode := r.controller.Mode()
	for _, disabled := range flag.DisabledInModes {
		if mode == disabled {
			return false
		}
	}

	if len(flag.RequiresComponents) > 0 {
		degraded := r.controller.Degraded()
		for _, component := range flag.RequiresComponents {
			if _, bad := degraded[component]; bad {
				return false
			}
		}
	}
	return true
}

// Snapshot reports every flag's current resolution, for the admin surface.
func (r *FlagRegistry) Snapshot() map[string]bool {
	r.mu.RLock()
	names := make([]string, 0, len(r.flags))
	for name := range r.flags {
		names = append(names, name)
	}
	r.mu.RUnlock()

	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = r.Enabled(name)
	}
	return out
}
