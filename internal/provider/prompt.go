package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
)

// appraisalAnswer is the JSON shape every voter model is asked to produce.
type appraisalAnswer struct {
	ItemName       string  `json:"item_name"`
	Category       string  `json:"category"`
	EstimatedValue float64 `json:"estimated_value"`
	Decision       string  `json:"decision"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

const appraisalSystem = `You are an expert resale appraiser. Given an item, decide whether it is worth buying for resale (BUY) or not (SELL), estimate its fair resale value in USD, and identify its category.

Respond with a single JSON object and nothing else:
{"item_name": "...", "category": "...", "estimated_value": 0.0, "decision": "BUY" or "SELL", "confidence": 0.0 to 1.0, "reasoning": "..."}`

// appraisalUserPrompt renders the item for a text or vision prompt.
func appraisalUserPrompt(item model.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Item: %s\n", item.Name)
	if item.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", item.Description)
	}
	if item.CategoryHint != "" {
		fmt.Fprintf(&sb, "Seller-listed category: %s\n", item.CategoryHint)
	}
	if item.AskingPrice > 0 {
		fmt.Fprintf(&sb, "Asking price: $%.2f\n", item.AskingPrice)
	}
	sb.WriteString("Appraise this item.")
	return sb.String()
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseAnswer decodes and sanity-checks a model response.
func parseAnswer(raw string) (*appraisalAnswer, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, eris.New("provider: empty model response")
	}

	var ans appraisalAnswer
	if err := json.Unmarshal([]byte(cleaned), &ans); err != nil {
		return nil, eris.Wrap(err, "provider: parse model response")
	}

	ans.Decision = strings.ToUpper(strings.TrimSpace(ans.Decision))
	if !model.Decision(ans.Decision).Valid() {
		return nil, eris.Errorf("provider: invalid decision %q", ans.Decision)
	}
	if ans.Confidence < 0 {
		ans.Confidence = 0
	}
	if ans.Confidence > 1 {
		ans.Confidence = 1
	}
	if ans.EstimatedValue < 0 {
		ans.EstimatedValue = 0
	}
	return &ans, nil
}

// answerToVote converts a parsed answer into a vote.
func answerToVote(providerID string, stage model.VoteStage, ans *appraisalAnswer, raw string, elapsed time.Duration) *model.Vote {
	return &model.Vote{
		ID:             uuid.NewString(),
		ProviderID:     providerID,
		Stage:          stage,
		ItemName:       ans.ItemName,
		Category:       ans.Category,
		EstimatedValue: ans.EstimatedValue,
		Decision:       model.Decision(ans.Decision),
		Confidence:     ans.Confidence,
		ResponseTimeMs: elapsed.Milliseconds(),
		RawResponse:    json.RawMessage(cleanJSON(raw)),
		CreatedAt:      time.Now().UTC(),
	}
}
