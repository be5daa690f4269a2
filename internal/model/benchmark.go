package model

import "time"

// PriceDirection classifies how a vote's price estimate related to ground truth.
type PriceDirection string

const (
	DirectionAccurate PriceDirection = "accurate"
	DirectionOver     PriceDirection = "over"
	DirectionUnder    PriceDirection = "under"
)

// GroundTruth is a later-confirmed real price used to retroactively grade
// the votes cast during an analysis.
type GroundTruth struct {
	AnalysisID  string    `json:"analysis_id"`
	Price       float64   `json:"price"`
	Source      string    `json:"source"` // e.g. "authority", "sold_listings"
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BenchmarkRecord grades one vote against observed ground truth. Created
// once, asynchronously, never mutated. The price-direction and
// decision-correct fields stay nil when no ground-truth price was available;
// partial scoring is valid.
type BenchmarkRecord struct {
	ID                string          `json:"id"`
	VoteID            string          `json:"vote_id"`
	AnalysisID        string          `json:"analysis_id"`
	ProviderID        string          `json:"provider_id"`
	Stage             VoteStage       `json:"stage"`
	GroundTruthPrice  *float64        `json:"ground_truth_price,omitempty"`
	PriceErrorDollars *float64        `json:"price_error_dollars,omitempty"`
	PriceErrorPercent *float64        `json:"price_error_percent,omitempty"`
	PriceDirection    *PriceDirection `json:"price_direction,omitempty"`
	DecisionCorrect   *bool           `json:"decision_correct,omitempty"`
	ScoredAt          time.Time       `json:"scored_at"`
}

// ProviderScorecard aggregates benchmark records for one provider. It is the
// input to offline weight tuning, not part of the live path.
type ProviderScorecard struct {
	ProviderID       string  `json:"provider_id"`
	VotesScored      int     `json:"votes_scored"`
	AvgErrorPercent  float64 `json:"avg_error_percent"`
	AccurateFraction float64 `json:"accurate_fraction"`
	DecisionAccuracy float64 `json:"decision_accuracy"`
}
