package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/anthropic"
)

type mockAnthropicClient struct {
	resp *anthropic.MessageResponse
	err  error
	last anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.last = req
	return m.resp, m.err
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func TestClaudeText_Analyze(t *testing.T) {
	mc := &mockAnthropicClient{resp: textResponse(
		`{"item_name": "Seiko SKX007", "category": "watches", "estimated_value": 320, "decision": "BUY", "confidence": 0.8}`)}
	p := NewClaudeText(mc, "")

	vote, err := p.Analyze(context.Background(), model.Item{Name: "Seiko SKX007"}, model.StageText)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, "claude-text", vote.ProviderID)
	assert.Equal(t, model.StageText, vote.Stage)
	assert.Equal(t, 320.0, vote.EstimatedValue)
	assert.Equal(t, defaultClaudeTextModel, mc.last.Model)
	// No images on a text-stage request.
	require.Len(t, mc.last.Messages, 1)
	assert.Empty(t, mc.last.Messages[0].Images)
}

func TestClaudeVision_AttachesImages(t *testing.T) {
	mc := &mockAnthropicClient{resp: textResponse(
		`{"item_name": "x", "estimated_value": 10, "decision": "SELL", "confidence": 0.5}`)}
	p := NewClaudeVision(mc, "")

	vote, err := p.Analyze(context.Background(),
		model.Item{Name: "x", ImageRefs: []string{"aGVsbG8=", "d29ybGQ="}}, model.StageVision)
	require.NoError(t, err)
	require.NotNil(t, vote)
	require.Len(t, mc.last.Messages, 1)
	assert.Len(t, mc.last.Messages[0].Images, 2)
}

func TestClaudeVision_AbstainsWithoutImages(t *testing.T) {
	mc := &mockAnthropicClient{}
	p := NewClaudeVision(mc, "")

	vote, err := p.Analyze(context.Background(), model.Item{Name: "x"}, model.StageVision)
	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestClaudeText_BadResponse(t *testing.T) {
	mc := &mockAnthropicClient{resp: textResponse("I cannot appraise this item.")}
	p := NewClaudeText(mc, "")

	_, err := p.Analyze(context.Background(), model.Item{Name: "x"}, model.StageText)
	assert.Error(t, err)
}

func TestClaudeArbiter_CastsTiebreakerVote(t *testing.T) {
	mc := &mockAnthropicClient{resp: textResponse(
		`{"item_name": "x", "estimated_value": 21, "decision": "BUY", "confidence": 0.9}`)}
	arb := NewClaudeArbiter(mc, "")

	votes := []model.Vote{
		{ProviderID: "p1", Stage: model.StageVision, Decision: model.DecisionBuy, EstimatedValue: 20, Confidence: 0.8},
		{ProviderID: "p2", Stage: model.StageText, Decision: model.DecisionSell, EstimatedValue: 18, Confidence: 0.8},
	}

	vote, err := arb.Arbitrate(context.Background(), model.Item{Name: "x"}, votes)
	require.NoError(t, err)
	assert.Equal(t, model.StageTiebreaker, vote.Stage)
	assert.Equal(t, "claude-arbiter", vote.ProviderID)
	assert.Equal(t, defaultClaudeArbiterModel, mc.last.Model)
	// The prompt shows the arbiter the split it is breaking.
	assert.Contains(t, mc.last.Messages[0].Content, "p1")
	assert.Contains(t, mc.last.Messages[0].Content, "SELL")
}
