package model

// AnalysisQuality grades how trustworthy a consensus result is.
type AnalysisQuality string

const (
	QualityOptimal  AnalysisQuality = "OPTIMAL"
	QualityDegraded AnalysisQuality = "DEGRADED"
	QualityFallback AnalysisQuality = "FALLBACK"
)

// VoteTally summarizes the weighted decision split across a vote set.
type VoteTally struct {
	Majority    Decision `json:"majority"`
	IsCloseVote bool     `json:"is_close_vote"`
	BuyVotes    int      `json:"buy_votes"`
	SellVotes   int      `json:"sell_votes"`
	BuyWeight   float64  `json:"buy_weight"`
	SellWeight  float64  `json:"sell_weight"`
	TotalWeight float64  `json:"total_weight"`
}

// ConsensusMetrics carries the per-signal breakdown behind a confidence score.
type ConsensusMetrics struct {
	AvgAIConfidence   float64 `json:"avg_ai_confidence"`
	DecisionAgreement float64 `json:"decision_agreement"`
	ValueAgreement    float64 `json:"value_agreement"`
	ParticipationRate float64 `json:"participation_rate"`
	AuthorityVerified bool    `json:"authority_verified"`
}

// ConsensusResult is the single actionable outcome of an analysis. It is
// created once per request and never mutated afterwards; persistence and
// display belong to the caller.
type ConsensusResult struct {
	ItemName       string           `json:"item_name"`
	EstimatedValue float64          `json:"estimated_value"`
	Decision       Decision         `json:"decision"`
	Confidence     int              `json:"confidence"` // [0,100]
	TotalVotes     int              `json:"total_votes"`
	Quality        AnalysisQuality  `json:"analysis_quality"`
	Metrics        ConsensusMetrics `json:"consensus_metrics"`
}
