package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// testConfig uses flat weights so expected prices are simple averages.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ScaleByConfidence = false
	return cfg
}

func vote(provider string, stage model.VoteStage, decision model.Decision, price, confidence float64) model.Vote {
	return model.Vote{
		ID:             provider + "-" + string(stage),
		ProviderID:     provider,
		Stage:          stage,
		ItemName:       "Test Item",
		EstimatedValue: price,
		Decision:       decision,
		Confidence:     confidence,
	}
}

func TestResult_FiveVoteExample(t *testing.T) {
	e := NewEngine(testConfig())

	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
		vote("p2", model.StageVision, model.DecisionBuy, 22, 0.7),
		vote("p3", model.StageText, model.DecisionBuy, 25, 0.9),
		vote("p4", model.StageText, model.DecisionSell, 10, 0.6),
		vote("p5", model.StageMarketSearch, model.DecisionSell, 12, 0.7),
	}

	result := e.Result(votes, nil)

	assert.Equal(t, model.DecisionBuy, result.Decision)
	assert.InDelta(t, 17.80, result.EstimatedValue, 0.001)
	assert.Equal(t, 5, result.TotalVotes)
	assert.InDelta(t, 0.6, result.Metrics.DecisionAgreement, 0.001)
	assert.GreaterOrEqual(t, result.Confidence, 0)
	assert.LessOrEqual(t, result.Confidence, 100)
}

func TestResult_ZeroVotes(t *testing.T) {
	e := NewEngine(testConfig())

	first := e.Result(nil, nil)
	second := e.Result([]model.Vote{}, nil)

	assert.Equal(t, model.DecisionSell, first.Decision)
	assert.Equal(t, 0, first.Confidence)
	assert.Equal(t, 0, first.TotalVotes)
	assert.Equal(t, model.QualityFallback, first.Quality)
	// Idempotent: identical result on identical (empty) input.
	assert.Equal(t, first, second)
}

func TestResult_SingleVote(t *testing.T) {
	e := NewEngine(testConfig())

	v := vote("p1", model.StageVision, model.DecisionBuy, 42.555, 0.99)
	result := e.Result([]model.Vote{v}, nil)

	assert.Equal(t, v.ItemName, result.ItemName)
	assert.InDelta(t, 42.56, result.EstimatedValue, 0.001)
	assert.Equal(t, v.Decision, result.Decision)
	assert.LessOrEqual(t, result.Confidence, 50)
	assert.Equal(t, 1, result.TotalVotes)
	assert.Equal(t, model.QualityFallback, result.Quality)
}

func TestResult_LowVoteCap(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)

	// Two perfectly agreeing, maximally confident votes plus verified
	// authority: signals are as strong as they can get, yet the cap holds.
	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 100, 1.0),
		vote("p2", model.StageText, model.DecisionBuy, 100, 1.0),
	}
	authority := &model.AuthorityData{SourceID: "discogs", Verified: true}

	result := e.Result(votes, authority)
	assert.LessOrEqual(t, result.Confidence, cfg.LowVoteCap)
}

func TestResult_ConfidenceAlwaysInRange(t *testing.T) {
	e := NewEngine(testConfig())

	sets := [][]model.Vote{
		nil,
		{vote("p1", model.StageVision, model.DecisionSell, 0, 0)},
		{
			vote("p1", model.StageVision, model.DecisionBuy, 1000, 1),
			vote("p2", model.StageVision, model.DecisionSell, 0.01, 0),
			vote("p3", model.StageMarketSearch, model.DecisionBuy, 5, 0.5),
		},
		{
			vote("p1", model.StageVision, model.DecisionBuy, 50, 1),
			vote("p2", model.StageVision, model.DecisionBuy, 50, 1),
			vote("p3", model.StageText, model.DecisionBuy, 50, 1),
			vote("p4", model.StageText, model.DecisionBuy, 50, 1),
			vote("p5", model.StageMarketSearch, model.DecisionBuy, 50, 1),
		},
	}

	for _, votes := range sets {
		result := e.Result(votes, &model.AuthorityData{Verified: true})
		assert.GreaterOrEqual(t, result.Confidence, 0)
		assert.LessOrEqual(t, result.Confidence, 100)
		assert.Contains(t, []model.AnalysisQuality{
			model.QualityOptimal, model.QualityDegraded, model.QualityFallback,
		}, result.Quality)
	}
}

func TestResult_AuthorityBonus(t *testing.T) {
	e := NewEngine(testConfig())

	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.7),
		vote("p2", model.StageText, model.DecisionBuy, 21, 0.7),
		vote("p3", model.StageText, model.DecisionSell, 19, 0.7),
		vote("p4", model.StageMarketSearch, model.DecisionBuy, 20, 0.7),
	}

	without := e.Result(votes, nil)
	with := e.Result(votes, &model.AuthorityData{SourceID: "discogs", Verified: true})

	assert.Greater(t, with.Confidence, without.Confidence)
	assert.True(t, with.Metrics.AuthorityVerified)
	assert.False(t, without.Metrics.AuthorityVerified)
}

func TestResult_ItemNamePrefersVision(t *testing.T) {
	e := NewEngine(testConfig())

	votes := []model.Vote{
		{ProviderID: "p1", Stage: model.StageVision, ItemName: "Nikon FM2 Camera", Decision: model.DecisionBuy, EstimatedValue: 200, Confidence: 0.8},
		{ProviderID: "p2", Stage: model.StageVision, ItemName: "Nikon FM2 Camera", Decision: model.DecisionBuy, EstimatedValue: 220, Confidence: 0.7},
		{ProviderID: "p3", Stage: model.StageMarketSearch, ItemName: "Nikon camera lot", Decision: model.DecisionBuy, EstimatedValue: 150, Confidence: 0.95},
	}

	result := e.Result(votes, nil)
	assert.Equal(t, "Nikon FM2 Camera", result.ItemName)
}

func TestStagedResult_FlattensBuckets(t *testing.T) {
	e := NewEngine(testConfig())

	staged := StagedVotes{
		Vision:       []model.Vote{vote("p1", "", model.DecisionBuy, 20, 0.8)},
		Text:         []model.Vote{vote("p2", "", model.DecisionBuy, 22, 0.7)},
		MarketSearch: []model.Vote{vote("p3", "", model.DecisionSell, 10, 0.6)},
	}

	result := e.StagedResult(staged, nil)
	require.Equal(t, 3, result.TotalVotes)

	flat := staged.Flatten()
	require.Len(t, flat, 3)
	assert.Equal(t, model.StageVision, flat[0].Stage)
	assert.Equal(t, model.StageText, flat[1].Stage)
	assert.Equal(t, model.StageMarketSearch, flat[2].Stage)

	// Staged and flat paths must agree.
	assert.Equal(t, e.Result(flat, nil), result)
}

func TestDetailed_ReportsTriggerEvaluation(t *testing.T) {
	e := NewEngine(testConfig())

	// 2-2 split with 4 primary votes: close vote, trigger holds.
	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.8),
		vote("p2", model.StageVision, model.DecisionSell, 18, 0.8),
		vote("p3", model.StageText, model.DecisionBuy, 22, 0.8),
		vote("p4", model.StageText, model.DecisionSell, 19, 0.8),
	}

	detailed := e.Detailed(votes, nil)
	assert.True(t, detailed.Tally.IsCloseVote)
	assert.True(t, detailed.Tiebreaker.Triggered)
	assert.Equal(t, StateTiebreakerRequested, detailed.Tiebreaker.State)
	assert.Equal(t, 4, detailed.Tiebreaker.PrimaryVotes)
	assert.Equal(t, detailed.Result, e.Result(votes, nil))

	// A lopsided vote set never requests arbitration.
	lopsided := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 20, 0.9),
		vote("p2", model.StageText, model.DecisionBuy, 22, 0.9),
		vote("p3", model.StageText, model.DecisionBuy, 21, 0.9),
	}
	calm := e.Detailed(lopsided, nil)
	assert.False(t, calm.Tiebreaker.Triggered)
	assert.Equal(t, StateNoTiebreaker, calm.Tiebreaker.State)
}
