package gateway

import (
	"sort"
	"sync"
)

// Registry holds the gateways available to an orchestrator, keyed by
// provider name.
type Registry struct {
	mu      sync.RWMutex
	callers map[string]Caller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]Caller)}
}

// Register adds or replaces the gateway for name.
func (r *Registry) Register(name string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[name] = c
}

// Get returns the gateway for name.
func (r *Registry) Get(name string) (Caller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[name]
	return c, ok
}

// Names returns registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
