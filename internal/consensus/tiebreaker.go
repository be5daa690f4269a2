package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// TiebreakerState tracks the arbitration state machine for one analysis.
type TiebreakerState string

const (
	StateNoTiebreaker         TiebreakerState = "no_tiebreaker"
	StateTiebreakerRequested  TiebreakerState = "tiebreaker_requested"
	StateTiebreakerMerged     TiebreakerState = "tiebreaker_merged"
	StateResolvedNoTiebreaker TiebreakerState = "resolved_no_tiebreaker"
)

// TiebreakerEvaluation explains whether and why arbitration ran.
type TiebreakerEvaluation struct {
	CloseVote        bool            `json:"close_vote"`
	PrimaryVotes     int             `json:"primary_votes"`
	ArbiterAvailable bool            `json:"arbiter_available"`
	Triggered        bool            `json:"triggered"`
	State            TiebreakerState `json:"state"`
	Reason           string          `json:"reason,omitempty"`
}

// Arbiter is a tiebreaker-capable provider that casts one extra vote over a
// closely split vote set.
type Arbiter interface {
	Name() string
	Arbitrate(ctx context.Context, item model.Item, votes []model.Vote) (*model.Vote, error)
}

// ShouldTriggerTiebreaker reports whether the vote set qualifies for
// arbitration: the weighted margin is below the close-vote threshold and
// enough primary-stage votes exist to make arbitration meaningful.
func (e *Engine) ShouldTriggerTiebreaker(votes []model.Vote, tally model.VoteTally) bool {
	return tally.IsCloseVote && len(model.PrimaryVotes(votes)) >= e.cfg.MinVotesForTiebreaker
}

// Tiebreaker runs the arbitration state machine for a single analysis.
// The zero state is NoTiebreaker; Resolve moves it to exactly one of the
// two terminal states.
type Tiebreaker struct {
	engine  *Engine
	arbiter Arbiter
	state   TiebreakerState
}

// NewTiebreaker creates a tiebreaker in the initial state. A nil arbiter is
// allowed; the trigger then resolves without arbitration.
func NewTiebreaker(engine *Engine, arbiter Arbiter) *Tiebreaker {
	return &Tiebreaker{engine: engine, arbiter: arbiter, state: StateNoTiebreaker}
}

// State returns the current state.
func (t *Tiebreaker) State() TiebreakerState { return t.state }

// Resolve evaluates the trigger condition and, when it holds, makes exactly
// one arbitration call and merges its vote into the returned set. The
// caller must recompute tally and confidence from scratch over the enlarged
// set. An unreachable arbiter is logged and never blocks: the original
// votes come back unchanged.
func (t *Tiebreaker) Resolve(ctx context.Context, item model.Item, votes []model.Vote, tally model.VoteTally) ([]model.Vote, TiebreakerEvaluation) {
	eval := TiebreakerEvaluation{
		CloseVote:        tally.IsCloseVote,
		PrimaryVotes:     len(model.PrimaryVotes(votes)),
		ArbiterAvailable: t.arbiter != nil,
	}

	if !t.engine.ShouldTriggerTiebreaker(votes, tally) {
		t.state = StateResolvedNoTiebreaker
		eval.State = t.state
		eval.Reason = "trigger condition not met"
		return votes, eval
	}

	if t.arbiter == nil {
		t.state = StateResolvedNoTiebreaker
		eval.State = t.state
		eval.Reason = "no tiebreaker-capable provider configured"
		zap.L().Info("tiebreaker: close vote but no arbiter available",
			zap.String("item", item.Name),
			zap.Int("primary_votes", eval.PrimaryVotes),
		)
		return votes, eval
	}

	t.state = StateTiebreakerRequested
	eval.Triggered = true

	arbVote, err := t.arbiter.Arbitrate(ctx, item, votes)
	if err != nil || arbVote == nil {
		t.state = StateResolvedNoTiebreaker
		eval.State = t.state
		eval.Reason = "arbiter unreachable"
		zap.L().Warn("tiebreaker: arbitration failed, resolving on original votes",
			zap.String("item", item.Name),
			zap.String("arbiter", t.arbiter.Name()),
			zap.Error(err),
		)
		return votes, eval
	}

	merged := *arbVote
	merged.Stage = model.StageTiebreaker

	t.state = StateTiebreakerMerged
	eval.State = t.state
	zap.L().Info("tiebreaker: arbitration vote merged",
		zap.String("item", item.Name),
		zap.String("arbiter", t.arbiter.Name()),
		zap.String("decision", string(merged.Decision)),
	)
	return append(votes, merged), eval
}
