package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"vinyl records", "vinyl_records"},
		{"Vinyl Record", "vinyl_records"},
		{"VINYL-RECORDS", "vinyl_records"},
		{"records/lps", "vinyl_records"},
		{"classic car", "vehicles"},
		{"Vehicles", "vehicles"},
		{"pokemon cards", "trading_cards"},
		{"trading cards", "trading_cards"},
		{"retro video games", "video_games"},
		{"Nintendo Games", "video_games"},
		{"sneakers", "sneakers"},
		{"wristwatch", "watches"},
		{"mid-century furniture", "furniture"},
		{"power tools", "tools"},
		{"first edition books", "books"},
		{"home decor", "home_decor"}, // no rule: cleaned string passes through
		{"", "general"},
		{"   ", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

// The vinyl rule must win before anything that could match vehicle terms:
// "vinyl records" contains the substring "vin".
func TestNormalize_VinylBeforeVehicles(t *testing.T) {
	assert.Equal(t, "vinyl_records", Normalize("vinyl records"))
	assert.NotEqual(t, "vehicles", Normalize("vinyl records"))
	assert.Equal(t, "vinyl_records", Normalize("vintage vinyl"))
}

// Short vehicle words match whole tokens only, so labels like "trading
// cards" (containing "car") stay out of the vehicle category.
func TestNormalize_WordBoundaryForVehicles(t *testing.T) {
	assert.Equal(t, "trading_cards", Normalize("sports cards"))
	assert.Equal(t, "vehicles", Normalize("project car"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"vinyl records", "Vehicles", "pokemon CARDS", "home decor",
		"general", "video_games", "sports_equipment", "weird new thing",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
