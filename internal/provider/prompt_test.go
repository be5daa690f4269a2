package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"decision": "BUY"}`, `{"decision": "BUY"}`},
		{"json fence", "```json\n{\"decision\": \"BUY\"}\n```", `{"decision": "BUY"}`},
		{"plain fence", "```\n{\"decision\": \"BUY\"}\n```", `{"decision": "BUY"}`},
		{"prose around object", `Sure! {"decision": "BUY"} Hope that helps.`, `{"decision": "BUY"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}

func TestParseAnswer(t *testing.T) {
	ans, err := parseAnswer(`{"item_name": "Abbey Road LP", "category": "vinyl records", "estimated_value": 24.5, "decision": "buy", "confidence": 0.85}`)
	require.NoError(t, err)
	assert.Equal(t, "Abbey Road LP", ans.ItemName)
	assert.Equal(t, "BUY", ans.Decision) // normalized to upper case
	assert.Equal(t, 0.85, ans.Confidence)
}

func TestParseAnswer_ClampsConfidence(t *testing.T) {
	ans, err := parseAnswer(`{"decision": "SELL", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ans.Confidence)

	ans, err = parseAnswer(`{"decision": "SELL", "confidence": -0.2, "estimated_value": -5}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ans.Confidence)
	assert.Equal(t, 0.0, ans.EstimatedValue)
}

func TestParseAnswer_Rejects(t *testing.T) {
	_, err := parseAnswer("")
	assert.Error(t, err)

	_, err = parseAnswer(`{"decision": "HOLD", "confidence": 0.5}`)
	assert.Error(t, err)

	_, err = parseAnswer("not json at all")
	assert.Error(t, err)
}

func TestAnswerToVote(t *testing.T) {
	ans := &appraisalAnswer{
		ItemName:       "Abbey Road LP",
		Category:       "vinyl_records",
		EstimatedValue: 24.5,
		Decision:       "BUY",
		Confidence:     0.85,
	}

	v := answerToVote("claude-text", model.StageText, ans, `{"x":1}`, 1500*time.Millisecond)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "claude-text", v.ProviderID)
	assert.Equal(t, model.StageText, v.Stage)
	assert.Equal(t, model.DecisionBuy, v.Decision)
	assert.Equal(t, int64(1500), v.ResponseTimeMs)
	assert.JSONEq(t, `{"x":1}`, string(v.RawResponse))
}
