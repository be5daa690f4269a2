package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient("test-key", WithHTTPClient(hc))
}

func TestChatCompletion_Success(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, defaultBaseURL+"/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))

			var body ChatCompletionRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			// The configured default model fills in when the request omits one.
			assert.Equal(t, defaultModel, body.Model)

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"id": "gen-123",
				"choices": []map[string]any{
					{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"decision":"BUY"}`}},
				},
				"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 40},
			})
		})

	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "appraise this"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gen-123", resp.ID)
	assert.Equal(t, `{"decision":"BUY"}`, resp.Text())
	assert.Equal(t, 120, resp.Usage.PromptTokens)
}

func TestChatCompletion_APIError(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, defaultBaseURL+"/chat/completions",
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"rate limited"}`))

	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestChatCompletion_ExplicitModelKept(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, defaultBaseURL+"/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			var body ChatCompletionRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "google/gemini-2.0-flash-001", body.Model)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"id": "gen-1", "choices": []any{}})
		})

	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "google/gemini-2.0-flash-001",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Text())
}
