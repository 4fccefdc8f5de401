package stations

import (
	"context"
	"sync"
)

// InMemoryRepository keeps bindings in memory. Used in tests and for
// bindings assembled from configuration.
type InMemoryRepository struct {
	mu       sync.RWMutex
	bindings []Binding
}

// NewInMemoryRepository creates a repository holding a copy of bindings.
func NewInMemoryRepository(bindings ...Binding) *InMemoryRepository {
	r := &InMemoryRepository{}
	r.Replace(bindings)
	return r
}

// List returns a copy of the stored bindings.
func (r *InMemoryRepository) List(_ context.Context) ([]Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out, nil
}

// Replace swaps the stored bindings.
func (r *InMemoryRepository) Replace(bindings []Binding) {
	cpy := make([]Binding, len(bindings))
	copy(cpy, bindings)
	sortBindings(cpy)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = cpy
}
