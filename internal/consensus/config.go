// Package consensus reduces heterogeneous per-provider votes into one
// actionable, confidence-scored buy/sell result.
package consensus

// Config holds every tunable constant of the engine. Injected rather than
// hard-coded so tuning and tests stay isolated.
type Config struct {
	// Weights maps provider id to base reliability weight. Missing
	// providers get DefaultWeight.
	Weights       map[string]float64
	DefaultWeight float64
	// ScaleByConfidence multiplies a vote's weight by the provider's own
	// reported confidence.
	ScaleByConfidence bool

	// CloseVoteThreshold is the weighted-margin fraction below which a
	// tally counts as a close vote.
	CloseVoteThreshold float64

	// TargetAICount is the provider count a full analysis aims for; the
	// participation signal is measured against it.
	TargetAICount int
	// MinVotesForFullConsensus is the vote count below which confidence is
	// capped at LowVoteCap.
	MinVotesForFullConsensus int
	// LowVoteCap is the confidence ceiling for small vote sets.
	LowVoteCap int
	// MinVotesForTiebreaker is the primary-stage vote count required
	// before an arbitration call may be made.
	MinVotesForTiebreaker int
	// AuthorityBonus is added to confidence when authority data verified
	// the item.
	AuthorityBonus int

	// Blend coefficients for the four confidence signals. They are
	// normalized by their sum, so only their ratios matter.
	BlendDecisionAgreement float64
	BlendValueAgreement    float64
	BlendAvgAIConfidence   float64
	BlendParticipation     float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultWeight:            1.0,
		ScaleByConfidence:        true,
		CloseVoteThreshold:       0.15,
		TargetAICount:            10,
		MinVotesForFullConsensus: 3,
		LowVoteCap:               75,
		MinVotesForTiebreaker:    4,
		AuthorityBonus:           10,
		BlendDecisionAgreement:   0.35,
		BlendValueAgreement:      0.25,
		BlendAvgAIConfidence:     0.25,
		BlendParticipation:       0.15,
	}
}

// applyDefaults fills zero values so a partially constructed config cannot
// divide by zero or cap everything at 0.
func (c Config) applyDefaults() Config {
	d := DefaultConfig()
	if c.DefaultWeight <= 0 {
		c.DefaultWeight = d.DefaultWeight
	}
	if c.CloseVoteThreshold <= 0 {
		c.CloseVoteThreshold = d.CloseVoteThreshold
	}
	if c.TargetAICount <= 0 {
		c.TargetAICount = d.TargetAICount
	}
	if c.MinVotesForFullConsensus <= 0 {
		c.MinVotesForFullConsensus = d.MinVotesForFullConsensus
	}
	if c.LowVoteCap <= 0 {
		c.LowVoteCap = d.LowVoteCap
	}
	if c.MinVotesForTiebreaker <= 0 {
		c.MinVotesForTiebreaker = d.MinVotesForTiebreaker
	}
	if c.AuthorityBonus <= 0 {
		c.AuthorityBonus = d.AuthorityBonus
	}
	if c.BlendDecisionAgreement+c.BlendValueAgreement+c.BlendAvgAIConfidence+c.BlendParticipation <= 0 {
		c.BlendDecisionAgreement = d.BlendDecisionAgreement
		c.BlendValueAgreement = d.BlendValueAgreement
		c.BlendAvgAIConfidence = d.BlendAvgAIConfidence
		c.BlendParticipation = d.BlendParticipation
	}
	return c
}
