package provider

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/ebay"
)

type stubEbayClient struct {
	listings []ebay.Listing
	err      error
}

func (s *stubEbayClient) SearchSold(_ context.Context, _ string, _ int) ([]ebay.Listing, error) {
	return s.listings, s.err
}

func comps(prices ...float64) []ebay.Listing {
	out := make([]ebay.Listing, len(prices))
	for i, p := range prices {
		out[i] = ebay.Listing{Title: "comp", Price: p}
	}
	return out
}

func TestMarketSearch_BuyWhenMedianClearsMargin(t *testing.T) {
	p := NewMarketSearch(&stubEbayClient{listings: comps(30, 28, 32)}, 0)

	vote, err := p.Analyze(context.Background(),
		model.Item{Name: "Abbey Road LP", AskingPrice: 20}, model.StageMarketSearch)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, model.DecisionBuy, vote.Decision)
	assert.Equal(t, 30.0, vote.EstimatedValue) // comp median
	assert.Equal(t, model.StageMarketSearch, vote.Stage)
}

func TestMarketSearch_SellWhenMarginTooThin(t *testing.T) {
	p := NewMarketSearch(&stubEbayClient{listings: comps(21, 20, 22)}, 0)

	vote, err := p.Analyze(context.Background(),
		model.Item{Name: "x", AskingPrice: 20}, model.StageMarketSearch)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, model.DecisionSell, vote.Decision)
}

func TestMarketSearch_AbstainsOnThinComps(t *testing.T) {
	p := NewMarketSearch(&stubEbayClient{listings: comps(30)}, 0)

	vote, err := p.Analyze(context.Background(), model.Item{Name: "x"}, model.StageMarketSearch)
	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestMarketSearch_SearchErrorPropagates(t *testing.T) {
	p := NewMarketSearch(&stubEbayClient{err: eris.New("down")}, 0)

	_, err := p.Analyze(context.Background(), model.Item{Name: "x"}, model.StageMarketSearch)
	assert.Error(t, err)
}

func TestMarketSearch_ConfidenceCapped(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 25
	}
	p := NewMarketSearch(&stubEbayClient{listings: comps(prices...)}, 0)

	vote, err := p.Analyze(context.Background(), model.Item{Name: "x"}, model.StageMarketSearch)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.LessOrEqual(t, vote.Confidence, 0.9)
}
