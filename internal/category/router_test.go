package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_KnownCategories(t *testing.T) {
	r := NewRouter(0)

	tests := []struct {
		category string
		want     []string
	}{
		{"vinyl_records", []string{SourceDiscogs, SourceEbaySold}},
		{"trading_cards", []string{SourceTCGPlayer, SourcePriceCharting, SourceEbaySold}},
		{"sneakers", []string{SourceStockX, SourceEbaySold}},
		{"watches", []string{SourceChrono24, SourceEbaySold}},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.category))
		})
	}
}

func TestRoute_UnmappedFallsBackToMarketplace(t *testing.T) {
	r := NewRouter(0)

	assert.Equal(t, []string{SourceEbaySold}, r.Route("general"))
	assert.Equal(t, []string{SourceEbaySold}, r.Route("never_seen_before"))
}

func TestRoute_CapsCascadeLength(t *testing.T) {
	r := NewRouter(1)

	for cat := range cascades {
		got := r.Route(cat)
		assert.Len(t, got, 1, "category %s", cat)
	}
}

func TestRoute_ReturnsCopy(t *testing.T) {
	r := NewRouter(0)

	first := r.Route("vinyl_records")
	first[0] = "mutated"
	assert.Equal(t, SourceDiscogs, r.Route("vinyl_records")[0])
}
