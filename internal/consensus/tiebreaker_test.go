package consensus

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
)

type mockArbiter struct {
	vote   *model.Vote
	err    error
	called int
}

func (m *mockArbiter) Name() string { return "mock-arbiter" }

func (m *mockArbiter) Arbitrate(_ context.Context, _ model.Item, _ []model.Vote) (*model.Vote, error) {
	m.called++
	return m.vote, m.err
}

// closeSplit returns 4 primary votes split 2-2.
func closeSplit() []model.Vote {
	return []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
		vote("p2", model.StageVision, model.DecisionSell, 18, 0.8),
		vote("p3", model.StageText, model.DecisionBuy, 22, 0.8),
		vote("p4", model.StageText, model.DecisionSell, 19, 0.8),
	}
}

func TestShouldTriggerTiebreaker(t *testing.T) {
	e := NewEngine(testConfig())

	tests := []struct {
		name    string
		votes   []model.Vote
		trigger bool
	}{
		{name: "close vote with enough primaries", votes: closeSplit(), trigger: true},
		{
			name: "close vote but too few primaries",
			votes: []model.Vote{
				vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
				vote("p2", model.StageText, model.DecisionSell, 18, 0.8),
			},
			trigger: false,
		},
		{
			name: "decisive vote never triggers",
			votes: []model.Vote{
				vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
				vote("p2", model.StageVision, model.DecisionBuy, 21, 0.8),
				vote("p3", model.StageText, model.DecisionBuy, 22, 0.8),
				vote("p4", model.StageText, model.DecisionBuy, 23, 0.8),
			},
			trigger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tally := e.Tally(tt.votes)
			assert.Equal(t, tt.trigger, e.ShouldTriggerTiebreaker(tt.votes, tally))
		})
	}
}

func TestTiebreaker_MergeRecomputesFromScratch(t *testing.T) {
	e := NewEngine(testConfig())
	arb := &mockArbiter{
		vote: &model.Vote{
			ProviderID:     "arbiter",
			ItemName:       "Test Item",
			EstimatedValue: 21,
			Decision:       model.DecisionBuy,
			Confidence:     0.9,
		},
	}

	votes := closeSplit()
	tb := NewTiebreaker(e, arb)
	assert.Equal(t, StateNoTiebreaker, tb.State())

	merged, eval := tb.Resolve(context.Background(), model.Item{Name: "Test Item"}, votes, e.Tally(votes))

	require.Equal(t, StateTiebreakerMerged, tb.State())
	assert.True(t, eval.Triggered)
	assert.Equal(t, 1, arb.called)
	// Exactly one vote added, tagged as tiebreaker stage.
	require.Len(t, merged, len(votes)+1)
	assert.Equal(t, model.StageTiebreaker, merged[len(merged)-1].Stage)

	// Recomputed, not patched: the result over the merged set counts the
	// tiebreaker vote and breaks the 2-2 split.
	result := e.Result(merged, nil)
	assert.Equal(t, len(votes)+1, result.TotalVotes)
	assert.Equal(t, model.DecisionBuy, result.Decision)
}

func TestTiebreaker_NoArbiterResolvesOnOriginalVotes(t *testing.T) {
	e := NewEngine(testConfig())
	votes := closeSplit()

	tb := NewTiebreaker(e, nil)
	merged, eval := tb.Resolve(context.Background(), model.Item{Name: "x"}, votes, e.Tally(votes))

	assert.Equal(t, StateResolvedNoTiebreaker, tb.State())
	assert.False(t, eval.Triggered)
	assert.Len(t, merged, len(votes))
}

func TestTiebreaker_ArbiterErrorIsNonFatal(t *testing.T) {
	e := NewEngine(testConfig())
	arb := &mockArbiter{err: eris.New("timeout")}
	votes := closeSplit()

	tb := NewTiebreaker(e, arb)
	merged, eval := tb.Resolve(context.Background(), model.Item{Name: "x"}, votes, e.Tally(votes))

	assert.Equal(t, StateResolvedNoTiebreaker, tb.State())
	assert.True(t, eval.Triggered)
	assert.Equal(t, "arbiter unreachable", eval.Reason)
	assert.Len(t, merged, len(votes))
}

func TestTiebreaker_NotTriggeredSkipsArbiter(t *testing.T) {
	e := NewEngine(testConfig())
	arb := &mockArbiter{vote: &model.Vote{Decision: model.DecisionBuy}}

	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
		vote("p2", model.StageVision, model.DecisionBuy, 21, 0.8),
		vote("p3", model.StageText, model.DecisionBuy, 22, 0.8),
		vote("p4", model.StageText, model.DecisionBuy, 23, 0.8),
	}

	tb := NewTiebreaker(e, arb)
	merged, eval := tb.Resolve(context.Background(), model.Item{Name: "x"}, votes, e.Tally(votes))

	assert.Equal(t, 0, arb.called)
	assert.False(t, eval.Triggered)
	assert.Len(t, merged, len(votes))
}
