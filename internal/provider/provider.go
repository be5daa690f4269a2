// Package provider defines the interface and registry for AI appraisal
// providers.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// Provider is a single AI voter. Implementations wrap one model behind one
// API and translate its answer into a Vote.
type Provider interface {
	// Name returns the provider identifier (matches the weight table and
	// vote provenance).
	Name() string
	// Stages returns the analysis stages this provider can vote in.
	Stages() []model.VoteStage
	// Analyze appraises the item for one stage and returns a vote. A nil
	// vote with a nil error means the provider abstained.
	Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error)
}

// Registry manages available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForStage returns the providers able to vote in the given stage, ordered by
// name so fan-out is deterministic.
func (r *Registry) ForStage(stage model.VoteStage) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, p := range r.providers {
		for _, s := range p.Stages() {
			if s == stage {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
