package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/openrouter"
)

const openRouterMaxTokens = 1024

// OpenRouter is a voter backed by one model behind the OpenRouter gateway,
// giving the panel voters outside the Anthropic family.
type OpenRouter struct {
	client openrouter.Client
	name   string
	model  string
	stages []model.VoteStage
}

// NewOpenRouter creates an OpenRouter-backed voter. name becomes the vote's
// provider ID and must be unique across the registry.
func NewOpenRouter(client openrouter.Client, name, modelID string, stages []model.VoteStage) *OpenRouter {
	if len(stages) == 0 {
		stages = []model.VoteStage{model.StageText}
	}
	return &OpenRouter{
		client: client,
		name:   name,
		model:  modelID,
		stages: stages,
	}
}

func (o *OpenRouter) Name() string { return o.name }

func (o *OpenRouter) Stages() []model.VoteStage { return o.stages }

func (o *OpenRouter) Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error) {
	if stage == model.StageVision && len(item.ImageRefs) == 0 {
		return nil, nil
	}
	messages := []openrouter.Message{
		{Role: "system", Content: appraisalSystem},
		o.userMessage(item, stage),
	}

	start := time.Now()
	resp, err := o.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: intPtr(openRouterMaxTokens),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s analyze", o.name)
	}
	elapsed := time.Since(start)

	ans, err := parseAnswer(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s response", o.name)
	}
	return answerToVote(o.name, stage, ans, resp.Text(), elapsed), nil
}

func (o *OpenRouter) userMessage(item model.Item, stage model.VoteStage) openrouter.Message {
	if stage != model.StageVision {
		return openrouter.Message{Role: "user", Content: appraisalUserPrompt(item)}
	}

	parts := make([]openrouter.ContentPart, 0, len(item.ImageRefs)+1)
	for _, ref := range item.ImageRefs {
		parts = append(parts, openrouter.ContentPart{
			Type:     "image_url",
			ImageURL: &openrouter.ImageURL{URL: "data:image/jpeg;base64," + ref},
		})
	}
	parts = append(parts, openrouter.ContentPart{Type: "text", Text: appraisalUserPrompt(item)})
	return openrouter.Message{Role: "user", Content: parts}
}

func intPtr(i int) *int { return &i }
