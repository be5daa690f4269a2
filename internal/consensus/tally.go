package consensus

import (
	"math"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// weightFor resolves the trust weight of a single vote: the provider's base
// reliability, optionally scaled by the vote's own confidence. Scaling is
// floored so a provider reporting zero confidence still participates.
func (e *Engine) weightFor(v model.Vote) float64 {
	base, ok := e.cfg.Weights[v.ProviderID]
	if !ok {
		base = e.cfg.DefaultWeight
	}
	if !e.cfg.ScaleByConfidence {
		return base
	}
	conf := v.Confidence
	if conf < 0.1 {
		conf = 0.1
	}
	if conf > 1 {
		conf = 1
	}
	return base * conf
}

// Tally computes the weighted decision split. The majority is the decision
// with greater total weight; ties resolve to SELL, the conservative default.
func (e *Engine) Tally(votes []model.Vote) model.VoteTally {
	t := model.VoteTally{Majority: model.DecisionSell}

	for _, v := range votes {
		w := e.weightFor(v)
		t.TotalWeight += w
		switch v.Decision {
		case model.DecisionBuy:
			t.BuyVotes++
			t.BuyWeight += w
		default:
			t.SellVotes++
			t.SellWeight += w
		}
	}

	if t.BuyWeight > t.SellWeight {
		t.Majority = model.DecisionBuy
	}
	if t.TotalWeight > 0 {
		margin := math.Abs(t.BuyWeight-t.SellWeight) / t.TotalWeight
		t.IsCloseVote = margin < e.cfg.CloseVoteThreshold
	}
	return t
}

// consensusPrice is the weighted average of all votes' estimated values
// using the same weights as the tally, rounded to cents. Not a plain
// vote-count average.
func (e *Engine) consensusPrice(votes []model.Vote) float64 {
	var sum, weight float64
	for _, v := range votes {
		w := e.weightFor(v)
		sum += w * v.EstimatedValue
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return math.Round(sum/weight*100) / 100
}

// consensusItemName picks the item name, preferring vision-stage votes
// (they saw the actual item) over market-search guesses. Among vision votes
// the most common name wins; ties go to the name backed by the highest
// individual confidence.
func (e *Engine) consensusItemName(votes []model.Vote) string {
	name := pickName(model.FilterStage(votes, model.StageVision))
	if name != "" {
		return name
	}
	name = pickName(model.FilterStage(votes, model.StageText))
	if name != "" {
		return name
	}
	return pickName(votes)
}

func pickName(votes []model.Vote) string {
	counts := make(map[string]int)
	best := make(map[string]float64)
	for _, v := range votes {
		if v.ItemName == "" {
			continue
		}
		counts[v.ItemName]++
		if v.Confidence > best[v.ItemName] {
			best[v.ItemName] = v.Confidence
		}
	}

	var winner string
	for name := range counts {
		if winner == "" {
			winner = name
			continue
		}
		if counts[name] > counts[winner] {
			winner = name
		} else if counts[name] == counts[winner] && best[name] > best[winner] {
			winner = name
		}
	}
	return winner
}
