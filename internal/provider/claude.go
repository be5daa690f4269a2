package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/anthropic"
)

const (
	defaultClaudeVisionModel  = "claude-sonnet-4-5-20250929"
	defaultClaudeTextModel    = "claude-haiku-4-5-20251001"
	defaultClaudeArbiterModel = "claude-opus-4-6"

	claudeMaxTokens = 1024
)

// Claude is a voter backed by one Anthropic model.
type Claude struct {
	client anthropic.Client
	name   string
	model  string
	stages []model.VoteStage
}

// NewClaudeVision creates the image-capable Claude voter.
func NewClaudeVision(client anthropic.Client, modelID string) *Claude {
	if modelID == "" {
		modelID = defaultClaudeVisionModel
	}
	return &Claude{
		client: client,
		name:   "claude-vision",
		model:  modelID,
		stages: []model.VoteStage{model.StageVision},
	}
}

// NewClaudeText creates the text-only Claude voter.
func NewClaudeText(client anthropic.Client, modelID string) *Claude {
	if modelID == "" {
		modelID = defaultClaudeTextModel
	}
	return &Claude{
		client: client,
		name:   "claude-text",
		model:  modelID,
		stages: []model.VoteStage{model.StageText},
	}
}

func (c *Claude) Name() string { return c.name }

func (c *Claude) Stages() []model.VoteStage { return c.stages }

// Analyze asks the model for an appraisal vote. Vision-stage calls attach the
// item's images; with no images the provider abstains rather than voting on
// text it never saw.
func (c *Claude) Analyze(ctx context.Context, item model.Item, stage model.VoteStage) (*model.Vote, error) {
	msg := anthropic.Message{Role: "user", Content: appraisalUserPrompt(item)}
	if stage == model.StageVision {
		if len(item.ImageRefs) == 0 {
			return nil, nil
		}
		for _, ref := range item.ImageRefs {
			msg.Images = append(msg.Images, anthropic.ImageBlock{
				MediaType: "image/jpeg",
				Data:      ref,
			})
		}
	}

	start := time.Now()
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		System:    []anthropic.SystemBlock{{Text: appraisalSystem, CacheControl: &anthropic.CacheControl{TTL: "5m"}}},
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s analyze", c.name)
	}
	elapsed := time.Since(start)
	resp.Usage.LogCost(c.model, string(stage))

	ans, err := parseAnswer(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s response", c.name)
	}
	return answerToVote(c.name, stage, ans, resp.Text(), elapsed), nil
}

// ClaudeArbiter casts the deciding vote on close calls, using the strongest
// model with the full vote history in context.
type ClaudeArbiter struct {
	client anthropic.Client
	model  string
}

// NewClaudeArbiter creates the tiebreaker arbiter.
func NewClaudeArbiter(client anthropic.Client, modelID string) *ClaudeArbiter {
	if modelID == "" {
		modelID = defaultClaudeArbiterModel
	}
	return &ClaudeArbiter{client: client, model: modelID}
}

func (a *ClaudeArbiter) Name() string { return "claude-arbiter" }

// Arbitrate reviews the split votes and returns a tiebreaking vote.
func (a *ClaudeArbiter) Arbitrate(ctx context.Context, item model.Item, votes []model.Vote) (*model.Vote, error) {
	var sb strings.Builder
	sb.WriteString(appraisalUserPrompt(item))
	sb.WriteString("\n\nThe panel is split. Their votes:\n")
	for _, v := range votes {
		fmt.Fprintf(&sb, "- %s (%s): %s at $%.2f, confidence %.2f\n",
			v.ProviderID, v.Stage, v.Decision, v.EstimatedValue, v.Confidence)
	}
	sb.WriteString("\nCast the deciding vote.")

	start := time.Now()
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: claudeMaxTokens,
		System:    []anthropic.SystemBlock{{Text: appraisalSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "provider: arbitrate")
	}
	elapsed := time.Since(start)
	resp.Usage.LogCost(a.model, string(model.StageTiebreaker))

	ans, err := parseAnswer(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "provider: arbiter response")
	}
	return answerToVote(a.Name(), model.StageTiebreaker, ans, resp.Text(), elapsed), nil
}
