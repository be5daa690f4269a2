package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/provider"
)

// primaryStages are the stages fanned out during vote collection. The
// tiebreaker stage is never fanned out; it is a single arbitration call.
var primaryStages = []model.VoteStage{
	model.StageVision,
	model.StageText,
	model.StageMarketSearch,
}

// collectVotes fans every stage-capable provider out concurrently and gathers
// whatever votes come back. A failed or timed-out provider contributes zero
// votes and never fails the collection; abstentions are silently skipped.
func collectVotes(ctx context.Context, registry *provider.Registry, item model.Item, callTimeout time.Duration, maxConcurrent int) []model.Vote {
	type call struct {
		p     provider.Provider
		stage model.VoteStage
	}

	var calls []call
	for _, stage := range primaryStages {
		for _, p := range registry.ForStage(stage) {
			calls = append(calls, call{p: p, stage: stage})
		}
	}

	var mu sync.Mutex
	var votes []model.Vote

	g, gCtx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	for _, c := range calls {
		g.Go(func() error {
			callCtx := gCtx
			if callTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gCtx, callTimeout)
				defer cancel()
			}

			start := time.Now()
			vote, err := c.p.Analyze(callCtx, item, c.stage)
			if err != nil {
				zap.L().Warn("analysis: provider call failed",
					zap.String("provider", c.p.Name()),
					zap.String("stage", string(c.stage)),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err),
				)
				return nil
			}
			if vote == nil {
				return nil
			}

			mu.Lock()
			votes = append(votes, *vote)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return votes
}
