package automation

import (
	"sort"
	"sync"
)

// Registry maps trigger/action kind identifiers to their handlers. It is
// populated once at startup (handlers.RegisterAll) and treated as read-only
// afterwards; the mutex only guards the registration phase. Looking up an
// unknown kind returns (nil, false). The registry never panics.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]TriggerHandler
	actions  map[string]ActionHandler
}

func NewRegistry() *Registry {
	return &Registry{
		triggers: make(map[string]TriggerHandler),
		actions:  make(map[string]ActionHandler),
	}
}

// RegisterTrigger registers h under its Meta().Type. Registering the same
// kind twice keeps the last one and is a programming error worth catching in
// tests, not at runtime.
func (r *Registry) RegisterTrigger(h TriggerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[h.Meta().Type] = h
}

func (r *Registry) RegisterAction(h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[h.Meta().Type] = h
}

// Trigger returns the trigger handler for kind, if registered.
func (r *Registry) Trigger(kind string) (TriggerHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.triggers[kind]
	return h, ok
}

// Action returns the action handler for kind, if registered.
func (r *Registry) Action(kind string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.actions[kind]
	return h, ok
}

// Triggers lists metadata of every registered trigger, sorted by type.
func (r *Registry) Triggers() []HandlerMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HandlerMeta, 0, len(r.triggers))
	for _, h := range r.triggers {
		out = append(out, h.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Actions lists metadata of every registered action, sorted by type.
func (r *Registry) Actions() []HandlerMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HandlerMeta, 0, len(r.actions))
	for _, h := range r.actions {
		out = append(out, h.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
