// Package benchmark grades past votes against later-confirmed ground truth
// and aggregates the grades into per-provider scorecards. Scoring is pure;
// the worker does the asynchronous plumbing.
package benchmark

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// accurateThresholdPercent is the error band within which an estimate counts
// as accurate.
const accurateThresholdPercent = 10.0

// ScoreVote grades one vote against ground truth. A nil truth produces a
// record with only identity fields filled: the vote was seen but could not be
// price-graded, and nil means "ungraded", never "wrong".
func ScoreVote(vote model.Vote, truth *model.GroundTruth) model.BenchmarkRecord {
	rec := model.BenchmarkRecord{
		ID:         uuid.NewString(),
		VoteID:     vote.ID,
		AnalysisID: vote.AnalysisID,
		ProviderID: vote.ProviderID,
		Stage:      vote.Stage,
		ScoredAt:   time.Now().UTC(),
	}

	if truth == nil || truth.Price <= 0 {
		return rec
	}

	price := truth.Price
	errDollars := math.Abs(vote.EstimatedValue - price)
	errPercent := errDollars / price * 100

	direction := model.DirectionAccurate
	switch {
	case errPercent <= accurateThresholdPercent:
		direction = model.DirectionAccurate
	case vote.EstimatedValue > price:
		direction = model.DirectionOver
	default:
		direction = model.DirectionUnder
	}

	correct := decisionCorrect(vote, price)

	rec.GroundTruthPrice = &price
	rec.PriceErrorDollars = &errDollars
	rec.PriceErrorPercent = &errPercent
	rec.PriceDirection = &direction
	rec.DecisionCorrect = &correct
	return rec
}

// decisionCorrect judges the BUY/SELL call against what the item actually
// fetched: a BUY was right when the realized price met the voter's estimate,
// a SELL was right when it fell short.
func decisionCorrect(vote model.Vote, truthPrice float64) bool {
	if vote.Decision == model.DecisionBuy {
		return truthPrice >= vote.EstimatedValue
	}
	return truthPrice < vote.EstimatedValue
}

// ScoreAnalysis grades every vote of an analysis in one pass.
func ScoreAnalysis(votes []model.Vote, truth *model.GroundTruth) []model.BenchmarkRecord {
	records := make([]model.BenchmarkRecord, 0, len(votes))
	for _, v := range votes {
		records = append(records, ScoreVote(v, truth))
	}
	return records
}

// Scorecard aggregates one provider's records. Ungraded records count toward
// VotesScored only when they carry price grades.
func Scorecard(providerID string, records []model.BenchmarkRecord) model.ProviderScorecard {
	card := model.ProviderScorecard{ProviderID: providerID}

	var errSum float64
	var accurate, correct, decided int
	for _, r := range records {
		if r.ProviderID != providerID || r.PriceErrorPercent == nil {
			continue
		}
		card.VotesScored++
		errSum += *r.PriceErrorPercent
		if r.PriceDirection != nil && *r.PriceDirection == model.DirectionAccurate {
			accurate++
		}
		if r.DecisionCorrect != nil {
			decided++
			if *r.DecisionCorrect {
				correct++
			}
		}
	}

	if card.VotesScored > 0 {
		card.AvgErrorPercent = errSum / float64(card.VotesScored)
		card.AccurateFraction = float64(accurate) / float64(card.VotesScored)
	}
	if decided > 0 {
		card.DecisionAccuracy = float64(correct) / float64(decided)
	}
	return card
}
