package model

import (
	"encoding/json"
	"time"
)

// VoteStage identifies which pipeline stage produced a vote.
type VoteStage string

const (
	StageVision       VoteStage = "vision"
	StageText         VoteStage = "text"
	StageMarketSearch VoteStage = "market_search"
	StageTiebreaker   VoteStage = "tiebreaker"
)

// AllVoteStages returns every valid vote stage.
func AllVoteStages() []VoteStage {
	return []VoteStage{StageVision, StageText, StageMarketSearch, StageTiebreaker}
}

// Valid reports whether the stage is one of the known stages.
func (s VoteStage) Valid() bool {
	switch s {
	case StageVision, StageText, StageMarketSearch, StageTiebreaker:
		return true
	}
	return false
}

// Decision is a provider's buy/sell recommendation for an item.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
)

// Valid reports whether the decision is BUY or SELL.
func (d Decision) Valid() bool {
	return d == DecisionBuy || d == DecisionSell
}

// Opposite returns the other decision.
func (d Decision) Opposite() Decision {
	if d == DecisionBuy {
		return DecisionSell
	}
	return DecisionBuy
}

// Vote is one AI provider's independent opinion about an item. Votes are
// ephemeral on the live path; they are persisted only so the benchmark
// scorer can grade them once ground truth is known.
type Vote struct {
	ID             string          `json:"id"`
	AnalysisID     string          `json:"analysis_id"`
	ProviderID     string          `json:"provider_id"`
	Stage          VoteStage       `json:"stage"`
	ItemName       string          `json:"item_name"`
	Category       string          `json:"category,omitempty"`
	EstimatedValue float64         `json:"estimated_value"`
	Decision       Decision        `json:"decision"`
	Confidence     float64         `json:"confidence"` // [0,1]
	ResponseTimeMs int64           `json:"response_time_ms"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FilterStage returns the votes that belong to the given stage.
func FilterStage(votes []Vote, stage VoteStage) []Vote {
	var out []Vote
	for _, v := range votes {
		if v.Stage == stage {
			out = append(out, v)
		}
	}
	return out
}

// PrimaryVotes returns the votes from all non-tiebreaker stages.
func PrimaryVotes(votes []Vote) []Vote {
	var out []Vote
	for _, v := range votes {
		if v.Stage != StageTiebreaker {
			out = append(out, v)
		}
	}
	return out
}
