package reference

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/model"
)

const (
	// DefaultSourceTimeout bounds each individual source call so one slow
	// backend cannot stall the whole cascade.
	DefaultSourceTimeout = 10 * time.Second
	// DefaultCacheTTL keeps resolved authority data warm between analyses
	// of similar items.
	DefaultCacheTTL = 15 * time.Minute
)

// Attempt records one source consultation in a cascade trace.
type Attempt struct {
	Source   string        `json:"source"`
	Hit      bool          `json:"hit"`
	Cached   bool          `json:"cached"`
	Err      string        `json:"err,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Executor walks a source cascade in order and returns the first hit.
type Executor struct {
	registry *Registry
	cache    *gocache.Cache
	timeout  time.Duration
}

// NewExecutor creates a cascade executor over the registry. timeout ≤ 0 uses
// DefaultSourceTimeout; cacheTTL ≤ 0 uses DefaultCacheTTL.
func NewExecutor(registry *Registry, timeout, cacheTTL time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Executor{
		registry: registry,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
		timeout:  timeout,
	}
}

// Resolve consults each named source in order and returns the first hit plus
// the full attempt trace. Misses and errors fall through to the next source;
// exhausting the cascade returns nil data with a nil error.
func (e *Executor) Resolve(ctx context.Context, q Lookup, cascade []string) (*model.AuthorityData, []Attempt) {
	attempts := make([]Attempt, 0, len(cascade))

	for _, name := range cascade {
		if err := ctx.Err(); err != nil {
			return nil, attempts
		}

		key := name + "|" + q.Category + "|" + q.ItemName
		if cached, ok := e.cache.Get(key); ok {
			data := cached.(*model.AuthorityData)
			attempts = append(attempts, Attempt{Source: name, Hit: true, Cached: true})
			return data, attempts
		}

		src := e.registry.Get(name)
		if src == nil {
			zap.L().Warn("reference: unregistered source in cascade",
				zap.String("source", name),
				zap.String("category", q.Category),
			)
			attempts = append(attempts, Attempt{Source: name, Err: "unregistered"})
			continue
		}

		start := time.Now()
		data, err := e.findWithTimeout(ctx, src, q)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			zap.L().Warn("reference: source lookup failed",
				zap.String("source", name),
				zap.String("item", q.ItemName),
				zap.Error(err),
			)
			attempts = append(attempts, Attempt{Source: name, Err: err.Error(), Duration: elapsed})
		case data == nil:
			attempts = append(attempts, Attempt{Source: name, Duration: elapsed})
		default:
			data.SourceID = name
			e.cache.Set(key, data, gocache.DefaultExpiration)
			attempts = append(attempts, Attempt{Source: name, Hit: true, Duration: elapsed})
			return data, attempts
		}
	}

	return nil, attempts
}

func (e *Executor) findWithTimeout(ctx context.Context, src Source, q Lookup) (*model.AuthorityData, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return src.Find(ctx, q)
}
