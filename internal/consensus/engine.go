package consensus

import (
	"math"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// singleVoteCap bounds confidence when only one provider answered.
const singleVoteCap = 50

// Engine composes tallying, pricing, and confidence into consensus results.
// All methods are pure, synchronous, and safe to call repeatedly on the
// same inputs.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.applyDefaults()}
}

// Result reduces a vote set plus optional authority data to a single
// ConsensusResult. It never fails, whatever the shape of the vote set:
// degenerate inputs produce the defined degraded results instead.
func (e *Engine) Result(votes []model.Vote, authority *model.AuthorityData) model.ConsensusResult {
	switch len(votes) {
	case 0:
		return emptyResult()
	case 1:
		return e.singleVoteResult(votes[0], authority)
	}

	tally := e.Tally(votes)
	breakdown := e.confidence(votes, tally, authority)

	return model.ConsensusResult{
		ItemName:       e.consensusItemName(votes),
		EstimatedValue: e.consensusPrice(votes),
		Decision:       tally.Majority,
		Confidence:     breakdown.Final,
		TotalVotes:     len(votes),
		Quality:        e.quality(breakdown.Final, len(votes)),
		Metrics:        breakdown.Metrics,
	}
}

// DetailedResult is Result plus the tally, the per-signal confidence
// breakdown, and the tiebreaker-trigger evaluation, for diagnostics.
type DetailedResult struct {
	Result     model.ConsensusResult `json:"result"`
	Tally      model.VoteTally       `json:"tally"`
	Breakdown  ConfidenceBreakdown   `json:"breakdown"`
	Tiebreaker TiebreakerEvaluation  `json:"tiebreaker"`
}

// Detailed computes the diagnostic result shape over the same inputs as
// Result. The tiebreaker section reports only the trigger evaluation; the
// arbitration call itself belongs to the analysis pipeline.
func (e *Engine) Detailed(votes []model.Vote, authority *model.AuthorityData) DetailedResult {
	tally := e.Tally(votes)
	eval := TiebreakerEvaluation{
		CloseVote:    tally.IsCloseVote,
		PrimaryVotes: len(model.PrimaryVotes(votes)),
		State:        StateNoTiebreaker,
	}
	if e.ShouldTriggerTiebreaker(votes, tally) {
		eval.Triggered = true
		eval.State = StateTiebreakerRequested
		eval.Reason = "trigger condition holds"
	}

	return DetailedResult{
		Result:     e.Result(votes, authority),
		Tally:      tally,
		Breakdown:  e.confidence(votes, tally, authority),
		Tiebreaker: eval,
	}
}

// StagedVotes is the 4-way bucketed input shape used by callers that track
// stages separately.
type StagedVotes struct {
	Vision       []model.Vote `json:"vision"`
	Text         []model.Vote `json:"text"`
	MarketSearch []model.Vote `json:"market_search"`
	Tiebreaker   []model.Vote `json:"tiebreaker"`
}

// Flatten merges the buckets into a single vote list, tagging each vote
// with its bucket's stage.
func (s StagedVotes) Flatten() []model.Vote {
	var out []model.Vote
	appendStage := func(votes []model.Vote, stage model.VoteStage) {
		for _, v := range votes {
			v.Stage = stage
			out = append(out, v)
		}
	}
	appendStage(s.Vision, model.StageVision)
	appendStage(s.Text, model.StageText)
	appendStage(s.MarketSearch, model.StageMarketSearch)
	appendStage(s.Tiebreaker, model.StageTiebreaker)
	return out
}

// StagedResult flattens the bucketed input and delegates to Result.
func (e *Engine) StagedResult(staged StagedVotes, authority *model.AuthorityData) model.ConsensusResult {
	return e.Result(staged.Flatten(), authority)
}

// emptyResult is the fixed zero-vote outcome: no evidence means don't buy.
func emptyResult() model.ConsensusResult {
	return model.ConsensusResult{
		Decision:   model.DecisionSell,
		Confidence: 0,
		TotalVotes: 0,
		Quality:    model.QualityFallback,
	}
}

// singleVoteResult mirrors the lone vote's fields with confidence capped;
// one opinion is never full consensus.
func (e *Engine) singleVoteResult(v model.Vote, authority *model.AuthorityData) model.ConsensusResult {
	tally := e.Tally([]model.Vote{v})
	breakdown := e.confidence([]model.Vote{v}, tally, authority)

	confidence := breakdown.Final
	if confidence > singleVoteCap {
		confidence = singleVoteCap
	}

	return model.ConsensusResult{
		ItemName:       v.ItemName,
		EstimatedValue: math.Round(v.EstimatedValue*100) / 100,
		Decision:       v.Decision,
		Confidence:     confidence,
		TotalVotes:     1,
		Quality:        model.QualityFallback,
		Metrics:        breakdown.Metrics,
	}
}
