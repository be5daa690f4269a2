package provider

import (
	"context"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// breakered wraps a provider with a circuit breaker so a failing upstream
// fails fast instead of eating the fan-out's call budget on every analysis.
type breakered struct {
	inner Provider
	cb    *resilience.CircuitBreaker
}

// WithBreaker wraps p with a per-provider circuit breaker.
func WithBreaker(p Provider, cfg resilience.CircuitBreakerConfig) Provider {
	return &breakered{
		inner: p,
		cb:    resilience.NewCircuitBreaker(cfg),
	}
}

func (b *breakered) Name() string { return b.inner.Name() }

func (b *breakered) Stages() []model.VoteStage { return b.inner.Stages() }

func (b *breakered) Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error) {
	return resilience.ExecuteVal(ctx, b.cb, func(ctx context.Context) (*model.Vote, error) {
		return b.inner.Analyze(ctx, item, stage)
	})
}
