// Package reference resolves items against external price-reference sources.
// A category routes to an ordered cascade of sources; the first hit wins and
// becomes the authority data the consensus engine blends in.
package reference

import (
	"context"
	"sort"
	"sync"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// Lookup describes one reference query.
type Lookup struct {
	ItemName string
	Category string
}

// Source is a single reference-data backend. A (nil, nil) return is a miss:
// the source answered but holds nothing for this item, and the cascade moves
// on.
type Source interface {
	// Name returns the source identifier used by the category router.
	Name() string
	// Find looks the item up. Returns nil data on a miss.
	Find(ctx context.Context, q Lookup) (*model.AuthorityData, error)
}

// Registry manages available reference sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns a source by name, or nil if not found.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// List returns all registered source names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
