package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-feed-reader/internal/infra/llm"
	"ai-feed-reader/internal/usecase/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claudeServer(t *testing.T, text string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		content := []map[string]string{}
		if text != "" {
			content = append(content, map[string]string{"type": "text", "text": text})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-sonnet-4-5-20250929",
			"content":       content,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": 12, "output_tokens": 7},
		})
	}))
}

func TestClaude_Complete(t *testing.T) {
	var seen map[string]any
	srv := claudeServer(t, "## 主要观点\n- a", &seen)
	defer srv.Close()

	c := llm.NewClaude(llm.ClaudeConfig{APIKey: "sk-ant", Model: "claude-sonnet-4-5-20250929", BaseURL: srv.URL}, nil)
	got, err := c.Complete(context.Background(), ai.Prompt{
		System: "sys", User: "usr", JSON: true, Temperature: 0.5, MaxTokens: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "## 主要观点\n- a", got)
	assert.Equal(t, "claude", c.Name())

	assert.Equal(t, float64(2000), seen["max_tokens"])
	system, ok := seen["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Contains(t, system[0].(map[string]any)["text"], "single JSON object")
}

func TestClaude_EmptyContent(t *testing.T) {
	srv := claudeServer(t, "", nil)
	defer srv.Close()

	c := llm.NewClaude(llm.ClaudeConfig{APIKey: "sk-ant", Model: "m", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), ai.Prompt{User: "u", MaxTokens: 10})
	assert.True(t, errors.Is(err, ai.ErrEmptyResponse))
}
