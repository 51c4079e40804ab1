package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is an in-memory map from (slot, name) to a plugin instance. It is
// read-only after bootstrap: every Register call happens during startup,
// before the session and lifecycle managers begin dispatching to it.
type Registry struct {
	mu        sync.RWMutex
	instances map[Slot]map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[Slot]map[string]any)}
}

// Register adds a named instance under a slot. It rejects a duplicate
// (slot, name) pair so config and built-in registration order never silently
// shadows a plugin.
func (r *Registry) Register(slot Slot, name string, instance any) error {
	if name == "" {
		return fmt.Errorf("plugin: name is required for slot %s", slot)
	}
	if instance == nil {
		return fmt.Errorf("plugin: instance is required for %s/%s", slot, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.instances[slot]
	if !ok {
		bucket = make(map[string]any)
		r.instances[slot] = bucket
	}
	if _, exists := bucket[name]; exists {
		return fmt.Errorf("plugin: %s/%s already registered", slot, name)
	}
	bucket[name] = instance
	return nil
}

// MustRegister panics if Register fails; used for built-ins wired at
// process startup where a failure indicates a programming error.
func (r *Registry) MustRegister(slot Slot, name string, instance any) {
	if err := r.Register(slot, name, instance); err != nil {
		panic(err)
	}
}

func get[T any](r *Registry, slot Slot, name string) (T, error) {
	var zero T
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket, ok := r.instances[slot]
	if !ok {
		return zero, fmt.Errorf("plugin: no plugins registered for slot %s", slot)
	}
	instance, ok := bucket[name]
	if !ok {
		return zero, fmt.Errorf("plugin: %s/%s is not registered", slot, name)
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("plugin: %s/%s does not implement the expected interface", slot, name)
	}
	return typed, nil
}

// Runtime resolves a registered Runtime plugin by name.
func (r *Registry) Runtime(name string) (Runtime, error) { return get[Runtime](r, SlotRuntime, name) }

// Agent resolves a registered Agent plugin by name.
func (r *Registry) Agent(name string) (Agent, error) { return get[Agent](r, SlotAgent, name) }

// Workspace resolves a registered Workspace plugin by name.
func (r *Registry) Workspace(name string) (Workspace, error) {
	return get[Workspace](r, SlotWorkspace, name)
}

// SCM resolves a registered SCM plugin by name.
func (r *Registry) SCM(name string) (SCM, error) { return get[SCM](r, SlotSCM, name) }

// Tracker resolves a registered Tracker plugin by name.
func (r *Registry) Tracker(name string) (Tracker, error) { return get[Tracker](r, SlotTracker, name) }

// Notifier resolves a registered Notifier plugin by name.
func (r *Registry) Notifier(name string) (Notifier, error) {
	return get[Notifier](r, SlotNotifier, name)
}

// Names returns the sorted plugin names registered under a slot.
func (r *Registry) Names(slot Slot) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket := r.instances[slot]
	names := make([]string, 0, len(bucket))
	for name := range bucket {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
