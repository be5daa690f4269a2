package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/ebay"
)

const (
	// marketMinComps is the smallest sample the market voter will vote on;
	// below it the provider abstains.
	marketMinComps = 3
	// marketMargin is the resale margin required before comps justify a BUY
	// against the asking price.
	marketMargin = 1.2
)

// MarketSearch votes from sold-listing comps instead of a language model.
// Its estimate is the comp median; its decision compares the median against
// the asking price.
type MarketSearch struct {
	client ebay.Client
	limit  int
}

// NewMarketSearch creates the comps-backed voter.
func NewMarketSearch(client ebay.Client, limit int) *MarketSearch {
	return &MarketSearch{client: client, limit: limit}
}

func (m *MarketSearch) Name() string { return "market-search" }

func (m *MarketSearch) Stages() []model.VoteStage {
	return []model.VoteStage{model.StageMarketSearch}
}

func (m *MarketSearch) Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error) {
	start := time.Now()
	listings, err := m.client.SearchSold(ctx, item.Name, m.limit)
	if err != nil {
		return nil, eris.Wrap(err, "provider: market search")
	}

	median, low, high, n, ok := ebay.PriceSummary(listings)
	if !ok || n < marketMinComps {
		// Not enough comps to form an opinion.
		return nil, nil
	}

	decision := model.DecisionSell
	if item.AskingPrice <= 0 || median >= item.AskingPrice*marketMargin {
		decision = model.DecisionBuy
	}

	// Confidence grows with sample size, capped well below certainty since
	// comps are title-matched, not item-matched.
	confidence := 0.4 + 0.05*float64(n)
	if confidence > 0.9 {
		confidence = 0.9
	}

	raw, _ := json.Marshal(map[string]any{
		"median": median, "low": low, "high": high, "comps": n,
	})

	return &model.Vote{
		ID:             uuid.NewString(),
		ProviderID:     m.Name(),
		Stage:          model.StageMarketSearch,
		ItemName:       item.Name,
		EstimatedValue: median,
		Decision:       decision,
		Confidence:     confidence,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		RawResponse:    raw,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
