// Package opmode tracks the process-wide operation mode. Components report
// degradation with a severity; the controller derives the mode, notifies
// listeners and persists state across restarts.
package opmode

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/pkg/eventbus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Controller owns the operation mode state machine. Mode derivation runs
// after every degradation change: any critical or high severity forces
// emergency, any medium forces degraded, otherwise normal. Maintenance is
// only ever set explicitly and suspends derivation until lifted.
type Controller struct {
	log         *logger.StyledLogger
	bus         *eventbus.EventBus[domain.ModeChange]
	degraded    map[string]domain.DegradationReason
	statePath   string
	listeners   []func(domain.ModeChange)
	mode        domain.OperationMode
	mu          sync.Mutex
	maintenance bool
}

type persistedState struct {
	Timestamp time.Time                           `json:"timestamp"`
	Degraded  map[string]domain.DegradationReason `json:"degraded_components"`
	Mode      domain.OperationMode                `json:"mode"`
}

// New builds a controller, restoring persisted state from statePath when a
// previous run left one behind. An empty statePath disables persistence.
func New(statePath string, log *logger.StyledLogger) *Controller {
	c := &Controller{
		mode:      domain.ModeNormal,
		degraded:  make(map[string]domain.DegradationReason),
		statePath: statePath,
		log:       log,
		bus:       eventbus.New[domain.ModeChange](),
	}
	c.restore()
	return c
}

// Mode returns the current operation mode.
func (c *Controller) Mode() domain.OperationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Degraded returns a copy of the current degradation set.
func (c *Controller) Degraded() map[string]domain.DegradationReason {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]domain.DegradationReason, len(c.degraded))
	for k, v := range c.degraded {
		out[k] = v
	}
	return out
}

// Events exposes the mode-change bus for subscribers that prefer channels
// over callbacks.
func (c *Controller) Events() *eventbus.EventBus[domain.ModeChange] {
	return c.bus
}

// OnChange registers a listener invoked on every mode transition. Listener
// panics are logged and contained; a broken listener must not take the
// controller down with it.
func (c *Controller) OnChange(listener func(domain.ModeChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// MarkDegraded records a component degradation and re-derives the mode.
func (c *Controller) MarkDegraded(component, message string, severity domain.Severity, details map[string]string) {
	c.mu.Lock()
	c.degraded[component] = domain.DegradationReason{
		Component: component,
		Message:   message,
		Severity:  severity,
		Details:   details,
		Timestamp: time.Now(),
	}
	change, changed := c.deriveLocked()
	c.mu.Unlock()

	c.log.WarnWithService("component degraded", component,
		"severity", severity.String(), "message", message)
	if changed {
		c.announce(change)
	}
}

// MarkNormal clears a component's degradation and re-derives the mode.
func (c *Controller) MarkNormal(component string) {
	c.mu.Lock()
	_, existed := c.degraded[component]
	delete(c.degraded, component)
	change, changed := c.deriveLocked()
	c.mu.Unlock()

	if existed {
		c.log.InfoWithService("component recovered", component)
	}
	if changed {
		c.announce(change)
	}
}

// SetMaintenance toggles maintenance mode. Entering pins the mode; leaving
// re-derives it from the current degradation set.
func (c *Controller) SetMaintenance(on bool) {
	c.mu.Lock()
	c.maintenance = on
	change, changed := c.deriveLocked()
	c.mu.Unlock()

	if changed {
		c.announce(change)
	}
}

// deriveLocked recomputes the mode from the degradation set, persists the
// result and returns the transition when the mode moved.
func (c *Controller) deriveLocked() (domain.ModeChange, bool) {
	next := domain.ModeNormal
	switch {
	case c.maintenance:
		next = domain.ModeMaintenance
	default:
		for _, reason := range c.degraded {
			switch reason.Severity {
			case domain.SeverityCritical, domain.SeverityHigh:
				next = domain.ModeEmergency
			case domain.SeverityMedium:
				if next == domain.ModeNormal {
					next = domain.ModeDegraded
				}
			}
		}
	}

	if next == c.mode {
		// The degradation set may still have moved
		c.persistLocked()
		return domain.ModeChange{}, false
	}

	change := domain.ModeChange{From: c.mode, To: next, Degraded: make(map[string]domain.DegradationReason, len(c.degraded))}
	for k, v := range c.degraded {
		change.Degraded[k] = v
	}
	c.mode = next
	c.persistLocked()
	return change, true
}

func (c *Controller) announce(change domain.ModeChange) {
	c.log.Warn("operation mode changed",
		"from", change.From.String(), "to", change.To.String(),
		"degraded", len(change.Degraded))

	c.mu.Lock()
	listeners := make([]func(domain.ModeChange), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, listener := range listeners {
		c.safeNotify(listener, change)
	}
	c.bus.Publish(change)
}

func (c *Controller) safeNotify(listener func(domain.ModeChange), change domain.ModeChange) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("mode change listener panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()
	listener(change)
}

func (c *Controller) persistLocked() {
	if c.statePath == "" {
		return
	}

	state := persistedState{
		Mode:      c.mode,
		Degraded:  c.degraded,
		Timestamp: time.Now(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		c.log.Error("encoding operation mode state", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.statePath), 0o755); err != nil {
		c.log.Error("creating operation mode state dir", "error", err)
		return
	}

	tmp := c.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.log.Error("writing operation mode state", "error", err)
		return
	}
	if err := os.Rename(tmp, c.statePath); err != nil {
		c.log.Error("committing operation mode state", "error", err)
	}
}

func (c *Controller) restore() {
	if c.statePath == "" {
		return
	}
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("reading persisted operation mode state", "error", err)
		}
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		c.log.Warn("persisted operation mode state is corrupt, starting fresh", "error", err)
		return
	}

	c.mode = state.Mode
	if c.mode == "" {
		c.mode = domain.ModeNormal
	}
	c.maintenance = state.Mode == domain.ModeMaintenance
	if state.Degraded != nil {
		c.degraded = state.Degraded
	}
	c.log.Info("restored operation mode state",
		"mode", c.mode.String(), "degraded", len(c.degraded), "saved_at", state.Timestamp)
}
