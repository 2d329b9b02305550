// Package plugin implements the registry half of the contract: manifest
// validation, the inbound event index, connection attachment, and business
// event dispatch with per-plugin panic isolation.
package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds the installed plugins in registration order and owns the
// event vocabulary they declare. Registration problems are logged and
// ignored rather than returned: a misbehaving plugin must never stop the
// server from coming up.
type Registry struct {
	mu       sync.RWMutex
	plugins  []Plugin
	byName   map[string]Manifest
	inbound  map[string]string // inbound event name -> first claiming plugin
	outbound map[string]string
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName:   make(map[string]Manifest),
		inbound:  make(map[string]string),
		outbound: make(map[string]string),
		logger:   logger,
	}
}

// Register installs a plugin. The manifest and handler map are validated
// here, at startup, so that a typo in an event name surfaces immediately
// instead of as silently dead traffic later. Duplicate registrations and
// invalid plugins are warned about and skipped. Several plugins may claim
// the same inbound event; their handlers all run, in registration order.
func (r *Registry) Register(p Plugin) {
	if p == nil {
		r.logger.Warn("plugin registration rejected", "reason", "nil plugin")
		return
	}
	m := p.Manifest()
	if m.Name == "" {
		r.logger.Warn("plugin registration rejected", "reason", "empty plugin name")
		return
	}
	if err := validateHandlers(m, p.Handlers()); err != nil {
		r.logger.Warn("plugin registration rejected", "plugin", m.Name, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[m.Name]; exists {
		r.logger.Warn("plugin already registered, ignoring", "plugin", m.Name)
		return
	}

	r.plugins = append(r.plugins, p)
	r.byName[m.Name] = m
	for _, ev := range m.InboundEvents {
		if owner, shared := r.inbound[ev]; shared {
			// Legal: both plugins' handlers run, in registration order.
			r.logger.Info("inbound event claimed by multiple plugins",
				"event", ev, "plugins", owner+","+m.Name)
			continue
		}
		r.inbound[ev] = m.Name
	}
	for _, ev := range m.OutboundEvents {
		if owner, taken := r.outbound[ev]; taken && owner != m.Name {
			r.logger.Warn("outbound event declared by multiple plugins", "event", ev, "plugins", owner+","+m.Name)
			continue
		}
		r.outbound[ev] = m.Name
	}

	r.logger.Info("plugin registered",
		"plugin", m.Name,
		"version", m.Version,
		"inboundEvents", len(m.InboundEvents),
		"outboundEvents", len(m.OutboundEvents))
}

// validateHandlers checks that the handler map and the declared inbound
// vocabulary agree exactly.
func validateHandlers(m Manifest, handlers map[string]InboundHandler) error {
	declared := make(map[string]struct{}, len(m.InboundEvents))
	for _, ev := range m.InboundEvents {
		if ev == "" {
			return fmt.Errorf("empty inbound event name")
		}
		declared[ev] = struct{}{}
	}
	for ev, h := range handlers {
		if h == nil {
			return fmt.Errorf("nil handler for event %q", ev)
		}
		if _, ok := declared[ev]; !ok {
			return fmt.Errorf("handler for undeclared event %q", ev)
		}
	}
	for ev := range declared {
		if _, ok := handlers[ev]; !ok {
			return fmt.Errorf("no handler for declared event %q", ev)
		}
	}
	return nil
}

// AttachToConnection binds every plugin's inbound handlers to a freshly
// accepted connection, in registration order.
func (r *Registry) AttachToConnection(d Dispatcher) {
	for _, p := range r.snapshot() {
		for ev, h := range p.Handlers() {
			d.On(ev, h)
		}
	}
}

// DispatchBusinessEvent delivers a server-side event to every plugin that
// opts into business events, in registration order. A panic or error in one
// plugin is logged and never reaches the others.
func (r *Registry) DispatchBusinessEvent(ev BusinessEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, p := range r.snapshot() {
		h, ok := p.(BusinessEventHandler)
		if !ok {
			continue
		}
		r.invokeIsolated(p.Manifest().Name, ev, h)
	}
}

func (r *Registry) invokeIsolated(name string, ev BusinessEvent, h BusinessEventHandler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panicked handling business event",
				"plugin", name, "event", ev.Type, "panic", rec)
		}
	}()
	if err := h.HandleBusinessEvent(ev); err != nil {
		r.logger.Error("plugin failed handling business event",
			"plugin", name, "event", ev.Type, "error", err)
	}
}

// Cleanup removes every plugin and runs teardown hooks for those that have
// them, in registration order. A failing teardown is logged and the rest
// still run. The registry is reusable afterwards.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	plugins := r.plugins
	r.plugins = nil
	r.byName = make(map[string]Manifest)
	r.inbound = make(map[string]string)
	r.outbound = make(map[string]string)
	r.mu.Unlock()

	for _, p := range plugins {
		td, ok := p.(Teardowner)
		if !ok {
			continue
		}
		r.teardownIsolated(p.Manifest().Name, td)
	}
	r.logger.Info("plugin registry cleaned up", "plugins", len(plugins))
}

func (r *Registry) teardownIsolated(name string, td Teardowner) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panicked during teardown", "plugin", name, "panic", rec)
		}
	}()
	if err := td.Teardown(); err != nil {
		r.logger.Error("plugin teardown failed", "plugin", name, "error", err)
	}
}

func (r *Registry) snapshot() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugins := make([]Plugin, len(r.plugins))
	copy(plugins, r.plugins)
	return plugins
}

// Count returns the number of installed plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Names returns the installed plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		names = append(names, p.Manifest().Name)
	}
	return names
}

// Manifests returns every installed manifest in registration order.
func (r *Registry) Manifests() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	manifests := make([]Manifest, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifests = append(manifests, r.byName[p.Manifest().Name])
	}
	return manifests
}

// Vocabulary returns the combined inbound and outbound event names across
// all plugins, sorted.
func (r *Registry) Vocabulary() (inbound, outbound []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inbound = make([]string, 0, len(r.inbound))
	for ev := range r.inbound {
		inbound = append(inbound, ev)
	}
	outbound = make([]string, 0, len(r.outbound))
	for ev := range r.outbound {
		outbound = append(outbound, ev)
	}
	sort.Strings(inbound)
	sort.Strings(outbound)
	return inbound, outbound
}
