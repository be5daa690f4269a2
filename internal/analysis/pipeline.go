// Package analysis orchestrates a full appraisal: category detection,
// reference lookup, provider fan-out, consensus, and persistence.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/category"
	"github.com/flipscout/appraisal-cli/internal/config"
	"github.com/flipscout/appraisal-cli/internal/consensus"
	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/provider"
	"github.com/flipscout/appraisal-cli/internal/reference"
	"github.com/flipscout/appraisal-cli/internal/store"
)

// Result is the full outcome of one pipeline run: the consensus plus the
// intermediate artifacts useful for display and debugging.
type Result struct {
	AnalysisID string                         `json:"analysis_id"`
	Item       model.Item                     `json:"item"`
	Detection  model.CategoryDetection        `json:"detection"`
	Cascade    []string                       `json:"cascade"`
	Attempts   []reference.Attempt            `json:"attempts,omitempty"`
	Authority  *model.AuthorityData           `json:"authority,omitempty"`
	Votes      []model.Vote                   `json:"votes"`
	Tiebreaker consensus.TiebreakerEvaluation `json:"tiebreaker"`
	Consensus  model.ConsensusResult          `json:"consensus"`
	Duration   time.Duration                  `json:"duration"`
}

// Pipeline wires the detection, reference, provider, and consensus components
// into the live appraisal path.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	registry  *provider.Registry
	detector  *category.Detector
	router    *category.Router
	reference *reference.Executor
	engine    *consensus.Engine
	arbiter   consensus.Arbiter
}

// New creates a pipeline with all dependencies. The arbiter may be nil; close
// votes then resolve without arbitration.
func New(
	cfg *config.Config,
	st store.Store,
	registry *provider.Registry,
	detector *category.Detector,
	router *category.Router,
	refExec *reference.Executor,
	engine *consensus.Engine,
	arbiter consensus.Arbiter,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		detector:  detector,
		router:    router,
		reference: refExec,
		engine:    engine,
		arbiter:   arbiter,
	}
}

// Run executes the full appraisal pipeline for a single item. It fails only
// on persistence errors; degenerate vote sets still produce a well-formed
// consensus result.
func (p *Pipeline) Run(ctx context.Context, item model.Item) (*Result, error) {
	log := zap.L().With(zap.String("item", item.Name))
	log.Info("analysis: starting appraisal")
	start := time.Now()

	run, err := p.store.CreateAnalysis(ctx, item)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: create run")
	}

	result := &Result{
		AnalysisID: run.ID,
		Item:       item,
	}

	// Category detection and reference-source routing.
	result.Detection = p.detector.Detect(category.Input{
		Name:        item.Name,
		Description: item.Description,
		UserHint:    item.CategoryHint,
	})
	if err := p.store.UpdateAnalysisCategory(ctx, run.ID, result.Detection); err != nil {
		log.Warn("analysis: failed to save category", zap.Error(err))
	}
	result.Cascade = p.router.Route(result.Detection.Category)

	log.Info("analysis: category detected",
		zap.String("category", result.Detection.Category),
		zap.Float64("confidence", result.Detection.Confidence),
		zap.String("source", string(result.Detection.Source)),
		zap.Strings("cascade", result.Cascade),
	)

	// Reference lookup. A full-cascade miss is normal; the consensus simply
	// runs without authority data.
	result.Authority, result.Attempts = p.reference.Resolve(ctx, reference.Lookup{
		ItemName: item.Name,
		Category: result.Detection.Category,
	}, result.Cascade)

	// A defaulted detection can be upgraded by the marketplace's own category
	// for the matched listings.
	if result.Detection.Source == model.DetectionDefault {
		if cat := authorityCategory(result.Authority); cat != "" {
			result.Detection = model.CategoryDetection{
				Category:   category.Normalize(cat),
				Confidence: 0.85,
				Keywords:   []string{},
				Source:     model.DetectionAuthorityData,
			}
			p.applyRefinedDetection(ctx, log, run.ID, result)
		}
	}

	// Provider fan-out. The stage timeout bounds the whole fan-out; the call
	// timeout bounds each provider within it.
	callTimeout := time.Duration(p.cfg.Providers.CallTimeoutSecs) * time.Second
	voteCtx := ctx
	if stageTimeout := time.Duration(p.cfg.Analysis.StageTimeoutSecs) * time.Second; stageTimeout > 0 {
		var cancel context.CancelFunc
		voteCtx, cancel = context.WithTimeout(ctx, stageTimeout)
		defer cancel()
	}
	votes := collectVotes(voteCtx, p.registry, item, callTimeout, p.cfg.Analysis.MaxConcurrent)
	log.Info("analysis: votes collected",
		zap.Int("votes", len(votes)),
		zap.Bool("authority", result.Authority != nil),
	)

	// If detection still defaulted, let the AI voters' category consensus
	// refine it and give the reference cascade a second chance.
	if result.Detection.Source == model.DetectionDefault {
		if cat := voteCategory(votes); cat != "" {
			result.Detection = p.detector.Detect(category.Input{
				Name:        item.Name,
				Description: item.Description,
				AICategory:  cat,
			})
			p.applyRefinedDetection(ctx, log, run.ID, result)
			if result.Authority == nil {
				var attempts []reference.Attempt
				result.Authority, attempts = p.reference.Resolve(ctx, reference.Lookup{
					ItemName: item.Name,
					Category: result.Detection.Category,
				}, result.Cascade)
				result.Attempts = append(result.Attempts, attempts...)
			}
		}
	}

	// Tiebreaker: at most one extra vote, then recompute from scratch.
	tally := p.engine.Tally(votes)
	tb := consensus.NewTiebreaker(p.engine, p.arbiter)
	arbCtx := ctx
	if callTimeout > 0 {
		var cancel context.CancelFunc
		arbCtx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	votes, result.Tiebreaker = tb.Resolve(arbCtx, item, votes, tally)

	for i := range votes {
		votes[i].AnalysisID = run.ID
		if votes[i].CreatedAt.IsZero() {
			votes[i].CreatedAt = time.Now().UTC()
		}
	}
	result.Votes = votes

	result.Consensus = p.engine.Result(votes, result.Authority)
	result.Duration = time.Since(start)

	// Persist votes so the benchmark scorer can grade them later. A save
	// failure degrades benchmarking, not the live answer.
	if len(votes) > 0 {
		if err := p.store.SaveVotes(ctx, votes); err != nil {
			log.Warn("analysis: failed to save votes", zap.Error(err))
		}
	}
	if err := p.store.UpdateAnalysisResult(ctx, run.ID, &result.Consensus); err != nil {
		if serr := p.store.UpdateAnalysisStatus(ctx, run.ID, model.AnalysisStatusFailed); serr != nil {
			log.Warn("analysis: failed to mark run failed", zap.Error(serr))
		}
		return nil, eris.Wrap(err, "analysis: save result")
	}

	log.Info("analysis: appraisal complete",
		zap.String("analysis_id", run.ID),
		zap.String("decision", string(result.Consensus.Decision)),
		zap.Float64("estimated_value", result.Consensus.EstimatedValue),
		zap.Int("confidence", result.Consensus.Confidence),
		zap.String("quality", string(result.Consensus.Quality)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// applyRefinedDetection reroutes the cascade for an upgraded detection and
// persists the new category.
func (p *Pipeline) applyRefinedDetection(ctx context.Context, log *zap.Logger, runID string, result *Result) {
	result.Cascade = p.router.Route(result.Detection.Category)
	if err := p.store.UpdateAnalysisCategory(ctx, runID, result.Detection); err != nil {
		log.Warn("analysis: failed to save refined category", zap.Error(err))
	}
	log.Info("analysis: category refined",
		zap.String("category", result.Detection.Category),
		zap.String("source", string(result.Detection.Source)),
	)
}

// authorityCategory extracts the marketplace category from authority item
// details, if present.
func authorityCategory(authority *model.AuthorityData) string {
	if authority == nil {
		return ""
	}
	cat, _ := authority.ItemDetails["category"].(string)
	return cat
}

// voteCategory picks the category most AI voters agree on. Ties break
// lexicographically so the choice is deterministic.
func voteCategory(votes []model.Vote) string {
	counts := make(map[string]int)
	for _, v := range votes {
		if v.Category != "" {
			counts[v.Category]++
		}
	}

	var best string
	for cat, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && cat < best) {
			best = cat
		}
	}
	return best
}
