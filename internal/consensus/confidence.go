package consensus

import (
	"math"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// ConfidenceBreakdown records how a final confidence was derived, for the
// detailed result shape and for diagnostics.
type ConfidenceBreakdown struct {
	Metrics           model.ConsensusMetrics `json:"metrics"`
	BlendedScore      float64                `json:"blended_score"` // before bonus/cap
	AuthorityBonus    int                    `json:"authority_bonus"`
	LowVoteCapApplied bool                   `json:"low_vote_cap_applied"`
	Final             int                    `json:"final"`
}

// confidence derives the 0-100 confidence score and its per-signal
// breakdown from a vote set, its tally, and optional authority data.
//
// Two rules hold regardless of the blend coefficients: verified authority
// data always adds the configured bonus, and fewer than
// MinVotesForFullConsensus votes always caps the result at LowVoteCap.
func (e *Engine) confidence(votes []model.Vote, tally model.VoteTally, authority *model.AuthorityData) ConfidenceBreakdown {
	m := model.ConsensusMetrics{
		ParticipationRate: participationRate(len(votes), e.cfg.TargetAICount),
		DecisionAgreement: decisionAgreement(tally),
		ValueAgreement:    valueAgreement(votes),
		AvgAIConfidence:   avgConfidence(votes),
		AuthorityVerified: authority != nil && authority.Verified,
	}

	wSum := e.cfg.BlendDecisionAgreement + e.cfg.BlendValueAgreement +
		e.cfg.BlendAvgAIConfidence + e.cfg.BlendParticipation
	blended := 100 * (e.cfg.BlendDecisionAgreement*m.DecisionAgreement +
		e.cfg.BlendValueAgreement*m.ValueAgreement +
		e.cfg.BlendAvgAIConfidence*m.AvgAIConfidence +
		e.cfg.BlendParticipation*m.ParticipationRate) / wSum

	b := ConfidenceBreakdown{Metrics: m, BlendedScore: blended}

	score := blended
	if m.AuthorityVerified {
		b.AuthorityBonus = e.cfg.AuthorityBonus
		score += float64(e.cfg.AuthorityBonus)
	}

	final := int(math.Round(score))
	if len(votes) < e.cfg.MinVotesForFullConsensus && final > e.cfg.LowVoteCap {
		final = e.cfg.LowVoteCap
		b.LowVoteCapApplied = true
	}
	b.Final = clampConfidence(final)
	return b
}

// quality maps final confidence and vote count onto exactly one tier.
func (e *Engine) quality(confidence, totalVotes int) model.AnalysisQuality {
	switch {
	case totalVotes <= 1 || confidence < 40:
		return model.QualityFallback
	case confidence >= 80 && totalVotes >= e.cfg.MinVotesForFullConsensus:
		return model.QualityOptimal
	default:
		return model.QualityDegraded
	}
}

func participationRate(votes, target int) float64 {
	if target <= 0 {
		return 0
	}
	rate := float64(votes) / float64(target)
	if rate > 1 {
		rate = 1
	}
	return rate
}

// decisionAgreement is the weighted fraction of the tally supporting the
// majority decision.
func decisionAgreement(t model.VoteTally) float64 {
	if t.TotalWeight == 0 {
		return 0
	}
	if t.Majority == model.DecisionBuy {
		return t.BuyWeight / t.TotalWeight
	}
	return t.SellWeight / t.TotalWeight
}

// valueAgreement measures price dispersion: 1 minus the coefficient of
// variation, clamped to [0,1]. A tight spread scores close to 1.
func valueAgreement(votes []model.Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	if len(votes) == 1 {
		return 1
	}

	var sum float64
	for _, v := range votes {
		sum += v.EstimatedValue
	}
	mean := sum / float64(len(votes))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, v := range votes {
		d := v.EstimatedValue - mean
		variance += d * d
	}
	variance /= float64(len(votes))

	cv := math.Sqrt(variance) / mean
	agreement := 1 - cv
	if agreement < 0 {
		return 0
	}
	if agreement > 1 {
		return 1
	}
	return agreement
}

func avgConfidence(votes []model.Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range votes {
		sum += v.Confidence
	}
	return sum / float64(len(votes))
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
