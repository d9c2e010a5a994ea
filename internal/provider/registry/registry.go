package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shilvister/devochat/internal/pipeline"
)

// Registry holds the configured stream adapters, keyed by endpoint name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]pipeline.Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]pipeline.Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter pipeline.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}

	r.adapters[name] = adapter
	return nil
}

// Get retrieves an adapter by endpoint name.
func (r *Registry) Get(name string) (pipeline.Adapter, error) {
	if name == "" {
		return nil, errors.New("adapter name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("adapter %s not found", name)
	}

	return adapter, nil
}

// List returns the registered endpoint names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
