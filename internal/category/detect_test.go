package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
)

func TestDetectByKeywords_UniqueKeywords(t *testing.T) {
	d := NewDetector(nil)

	det := d.DetectByKeywords("Fender Stratocaster guitar with tube amp")
	assert.Equal(t, "musical_instruments", det.Category)
	assert.Equal(t, model.DetectionKeyword, det.Source)
	assert.NotEmpty(t, det.Keywords)
	assert.Greater(t, det.Confidence, 0.5)
	assert.LessOrEqual(t, det.Confidence, 0.95)
}

func TestDetectByKeywords_NoMatch(t *testing.T) {
	d := NewDetector(nil)

	det := d.DetectByKeywords("mysterious unlabeled object")
	assert.Equal(t, General, det.Category)
	assert.Equal(t, 0.3, det.Confidence)
	assert.Empty(t, det.Keywords)
	assert.Equal(t, model.DetectionDefault, det.Source)
}

func TestDetectByKeywords_LongerPhrasesScoreHigher(t *testing.T) {
	d := NewDetector(&Tables{
		Keywords: map[string][]string{
			"books":    {"edition"},
			"antiques": {"first edition print"},
		},
	})

	// Both categories match, but the three-word phrase outscores the word.
	det := d.DetectByKeywords("first edition print from 1890")
	assert.Equal(t, "antiques", det.Category)
}

func TestDetectByKeywords_ConfidenceFormula(t *testing.T) {
	d := NewDetector(&Tables{
		Keywords: map[string][]string{"books": {"hardcover"}},
	})

	// One single-word match: 0.5 + 0.1*1.
	det := d.DetectByKeywords("hardcover mystery")
	assert.InDelta(t, 0.6, det.Confidence, 0.001)
}

func TestDetectByKeywords_TiePrefersLongerKey(t *testing.T) {
	d := NewDetector(&Tables{
		Keywords: map[string][]string{
			"toys":          {"sealed"},
			"trading_cards": {"graded"},
		},
	})

	det := d.DetectByKeywords("sealed and graded")
	assert.Equal(t, "trading_cards", det.Category)
}

func TestDetect_PriorityOrder(t *testing.T) {
	d := NewDetector(nil)

	t.Run("user hint wins over everything", func(t *testing.T) {
		det := d.Detect(Input{Name: "PSA 10 Charizard", UserHint: "vinyl records"})
		assert.Equal(t, "vinyl_records", det.Category)
		assert.Equal(t, model.DetectionUserHint, det.Source)
	})

	t.Run("name override beats AI category and keywords", func(t *testing.T) {
		det := d.Detect(Input{Name: "PSA 10 Charizard Holo", AICategory: "toys"})
		assert.Equal(t, "trading_cards", det.Category)
		assert.Equal(t, model.DetectionNameOverride, det.Source)
	})

	t.Run("AI category is normalized and bypasses keywords", func(t *testing.T) {
		det := d.Detect(Input{Name: "old thing", AICategory: "Vinyl Record"})
		assert.Equal(t, "vinyl_records", det.Category)
		assert.Equal(t, model.DetectionAIVote, det.Source)
	})

	t.Run("keywords are the fallback before default", func(t *testing.T) {
		det := d.Detect(Input{Name: "Seiko chronograph", Description: "automatic movement"})
		assert.Equal(t, "watches", det.Category)
		assert.Equal(t, model.DetectionKeyword, det.Source)
	})

	t.Run("nothing matches falls to general", func(t *testing.T) {
		det := d.Detect(Input{Name: "odd widget"})
		assert.Equal(t, General, det.Category)
		assert.Equal(t, model.DetectionDefault, det.Source)
	})
}

func TestDetect_OverridePriorityOrdering(t *testing.T) {
	tables := &Tables{
		Keywords: map[string][]string{},
		Overrides: []NameOverride{
			{Pattern: `(?i)widget`, Category: "toys", Priority: 10},
			{Pattern: `(?i)widget`, Category: "tools", Priority: 50},
		},
	}
	require.NoError(t, tables.compile())
	d := NewDetector(tables)

	det := d.Detect(Input{Name: "widget"})
	assert.Equal(t, "tools", det.Category)
}
