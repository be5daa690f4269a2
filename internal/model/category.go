package model

// DetectionSource records which mechanism picked an item's category.
type DetectionSource string

const (
	DetectionNameOverride  DetectionSource = "name_override"
	DetectionKeyword       DetectionSource = "keyword_detection"
	DetectionAIVote        DetectionSource = "ai_vote"
	DetectionUserHint      DetectionSource = "user_hint"
	DetectionAuthorityData DetectionSource = "authority_data"
	DetectionDefault       DetectionSource = "default"
)

// CategoryDetection is the outcome of category detection for an item.
type CategoryDetection struct {
	Category   string          `json:"category"`
	Confidence float64         `json:"confidence"` // [0,1]
	Keywords   []string        `json:"keywords"`
	Source     DetectionSource `json:"source"`
}
