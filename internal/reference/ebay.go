package reference

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/ebay"
)

// minComps is the smallest sold-listing sample we treat as verification.
const minComps = 3

// EbaySoldSource resolves items against recent eBay sold listings. It is the
// general-purpose tail of every cascade.
type EbaySoldSource struct {
	client ebay.Client
	limit  int
}

// NewEbaySoldSource wraps an eBay client as a reference source. limit ≤ 0
// uses the client default.
func NewEbaySoldSource(client ebay.Client, limit int) *EbaySoldSource {
	return &EbaySoldSource{client: client, limit: limit}
}

func (s *EbaySoldSource) Name() string { return "ebay_sold" }

// Find searches sold listings for the item and summarizes comps into a price
// range. Too few comps is a miss, not an error.
func (s *EbaySoldSource) Find(ctx context.Context, q Lookup) (*model.AuthorityData, error) {
	listings, err := s.client.SearchSold(ctx, q.ItemName, s.limit)
	if err != nil {
		return nil, eris.Wrap(err, "reference: ebay sold search")
	}

	median, low, high, n, ok := ebay.PriceSummary(listings)
	if !ok || n < minComps {
		return nil, nil
	}

	details := map[string]any{
		"top_listing": listings[0].Title,
		"comps":       n,
	}
	for _, l := range listings {
		if l.Category != "" {
			details["category"] = l.Category
			break
		}
	}

	return &model.AuthorityData{
		Verified:    true,
		ItemDetails: details,
		PriceData: &model.PriceRange{
			Median:     median,
			Low:        low,
			High:       high,
			SampleSize: n,
		},
	}, nil
}
