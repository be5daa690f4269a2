package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// rateLimited wraps a provider with a token-bucket limiter so concurrent
// fan-outs respect the upstream API's request budget.
type rateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// RateLimited wraps p with a limiter of rps requests per second. rps ≤ 0
// returns p unwrapped.
func RateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimited) Name() string { return r.inner.Name() }

func (r *rateLimited) Stages() []model.VoteStage { return r.inner.Stages() }

func (r *rateLimited) Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "provider: rate limit wait for %s", r.inner.Name())
	}
	return r.inner.Analyze(ctx, item, stage)
}
