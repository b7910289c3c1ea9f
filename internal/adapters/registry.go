package adapters

import (
	"fmt"
	"sync"

	"github.com/sevigo/integrator/internal/core"
)

// Registry resolves adapter_code to an Adapter. First-party adapters
// live in the static table; plugin-style adapters register dynamically
// at startup.
type Registry struct {
	mu      sync.RWMutex
	dynamic map[string]*Adapter
}

// NewRegistry creates a Registry with only the static table populated.
func NewRegistry() *Registry {
	return &Registry{dynamic: make(map[string]*Adapter)}
}

// Register adds or replaces a dynamic adapter. Dynamic registrations
// shadow static entries with the same code.
func (r *Registry) Register(a *Adapter) error {
	if a == nil || a.Code == "" {
		return fmt.Errorf("adapter requires a code")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic[a.Code] = a
	return nil
}

// Resolve returns the adapter for a code, dynamic entries first.
func (r *Registry) Resolve(code string) (*Adapter, error) {
	r.mu.RLock()
	if a, ok := r.dynamic[code]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	if a, ok := static[code]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter registered for code %q: %w", code, core.ErrNotFound)
}

// static is the first-party adapter table.
var static = map[string]*Adapter{
	core.AdapterCodeManual: manualAdapter,
	mockAdapter.Code:       mockAdapter,
}
