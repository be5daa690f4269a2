package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flipscout/appraisal-cli/internal/model"
)

func TestValueAgreement(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		check  func(t *testing.T, got float64)
	}{
		{
			name:   "identical prices agree fully",
			prices: []float64{20, 20, 20},
			check:  func(t *testing.T, got float64) { assert.InDelta(t, 1.0, got, 0.001) },
		},
		{
			name:   "single vote agrees fully",
			prices: []float64{42},
			check:  func(t *testing.T, got float64) { assert.InDelta(t, 1.0, got, 0.001) },
		},
		{
			name:   "wild spread scores low",
			prices: []float64{1, 1000},
			check:  func(t *testing.T, got float64) { assert.Less(t, got, 0.2) },
		},
		{
			name:   "moderate spread in between",
			prices: []float64{20, 22, 25, 10, 12},
			check: func(t *testing.T, got float64) {
				assert.Greater(t, got, 0.5)
				assert.Less(t, got, 0.8)
			},
		},
		{
			name:   "empty set scores zero",
			prices: nil,
			check:  func(t *testing.T, got float64) { assert.Equal(t, 0.0, got) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var votes []model.Vote
			for _, p := range tt.prices {
				votes = append(votes, model.Vote{EstimatedValue: p})
			}
			got := valueAgreement(votes)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
			tt.check(t, got)
		})
	}
}

func TestParticipationRate_Clamped(t *testing.T) {
	assert.InDelta(t, 0.5, participationRate(5, 10), 0.001)
	assert.InDelta(t, 1.0, participationRate(15, 10), 0.001)
	assert.Equal(t, 0.0, participationRate(3, 0))
}

func TestConfidence_LowVoteCapApplied(t *testing.T) {
	e := NewEngine(testConfig())

	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 100, 1.0),
		vote("p2", model.StageText, model.DecisionBuy, 100, 1.0),
	}
	tally := e.Tally(votes)
	b := e.confidence(votes, tally, &model.AuthorityData{Verified: true})

	assert.True(t, b.LowVoteCapApplied)
	assert.Equal(t, e.cfg.LowVoteCap, b.Final)
}

func TestConfidence_CapNotAppliedAtThreshold(t *testing.T) {
	e := NewEngine(testConfig())

	votes := []model.Vote{
		vote("p1", model.StageVision, model.DecisionBuy, 100, 1.0),
		vote("p2", model.StageText, model.DecisionBuy, 100, 1.0),
		vote("p3", model.StageMarketSearch, model.DecisionBuy, 100, 1.0),
	}
	tally := e.Tally(votes)
	b := e.confidence(votes, tally, nil)

	assert.False(t, b.LowVoteCapApplied)
}

func TestQualityTiers(t *testing.T) {
	e := NewEngine(testConfig())

	tests := []struct {
		confidence int
		votes      int
		want       model.AnalysisQuality
	}{
		{confidence: 90, votes: 5, want: model.QualityOptimal},
		{confidence: 90, votes: 1, want: model.QualityFallback},
		{confidence: 65, votes: 5, want: model.QualityDegraded},
		{confidence: 85, votes: 2, want: model.QualityDegraded},
		{confidence: 20, votes: 5, want: model.QualityFallback},
		{confidence: 0, votes: 0, want: model.QualityFallback},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, e.quality(tt.confidence, tt.votes),
			"confidence=%d votes=%d", tt.confidence, tt.votes)
	}
}

func TestDecisionAgreement_Weighted(t *testing.T) {
	tally := model.VoteTally{
		Majority:    model.DecisionBuy,
		BuyWeight:   3,
		SellWeight:  1,
		TotalWeight: 4,
	}
	assert.InDelta(t, 0.75, decisionAgreement(tally), 0.001)
	assert.Equal(t, 0.0, decisionAgreement(model.VoteTally{}))
}
