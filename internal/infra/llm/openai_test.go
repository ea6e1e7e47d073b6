package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ai-feed-reader/internal/infra/llm"
	"ai-feed-reader/internal/resilience/circuitbreaker"
	"ai-feed-reader/internal/resilience/retry"
	"ai-feed-reader/internal/usecase/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───── ヘルパ ───── */

type chatRequest struct {
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "deepseek-chat",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func newOpenAI(url string) *llm.OpenAI {
	return llm.NewOpenAI(llm.OpenAIConfig{APIKey: "sk-test", BaseURL: url, Model: "deepseek-chat"}, nil)
}

/* ───── テスト ───── */

func TestOpenAI_Complete(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, http.StatusOK, `{"labels":[]}`, &seen)
	defer srv.Close()

	got, err := newOpenAI(srv.URL).Complete(context.Background(), ai.Prompt{
		System: "sys", User: "usr", JSON: true, Temperature: 0.3, MaxTokens: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"labels":[]}`, got)

	assert.Equal(t, "deepseek-chat", seen.Model)
	assert.Equal(t, 2000, seen.MaxTokens)
	assert.InDelta(t, 0.3, seen.Temperature, 0.001)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "usr", seen.Messages[1].Content)
}

func TestOpenAI_PlainTextHasNoResponseFormat(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, http.StatusOK, "## heading", &seen)
	defer srv.Close()

	_, err := newOpenAI(srv.URL).Complete(context.Background(), ai.Prompt{System: "s", User: "u"})
	require.NoError(t, err)
	assert.Nil(t, seen.ResponseFormat)
}

func TestOpenAI_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := chatServer(t, http.StatusInternalServerError, "", nil)
		defer srv.Close()

		_, err := newOpenAI(srv.URL).Complete(context.Background(), ai.Prompt{User: "u"})
		assert.ErrorContains(t, err, "openai api error")
	})

	t.Run("empty content", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "", nil)
		defer srv.Close()

		c := llm.NewOpenAI(llm.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, nil)
		_, err := c.Complete(context.Background(), ai.Prompt{User: "u"})
		assert.True(t, errors.Is(err, ai.ErrEmptyResponse))
		assert.Equal(t, "openai", c.Name())
	})
}

func TestOpenAI_OpenBreakerStopsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"bad gateway","type":"server_error"}}`))
	}))
	defer srv.Close()
	c := newOpenAI(srv.URL)

	for range 5 {
		_, err := c.Complete(context.Background(), ai.Prompt{User: "u"})
		require.Error(t, err)
	}
	require.Equal(t, int32(5), hits.Load())

	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Retryable: retry.RetryAll}
	attempts := 0
	err := retry.WithBackoff(context.Background(), cfg, func() error {
		attempts++
		_, err := c.Complete(context.Background(), ai.Prompt{User: "u"})
		return err
	})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int32(5), hits.Load(), "no request reaches the server while open")
}

func TestOpenAI_RateLimiterHonoursContext(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "ok", nil)
	defer srv.Close()

	limiter := llm.NewRateLimiter(0.001, 1)
	c := llm.NewOpenAI(llm.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "m"}, limiter)

	_, err := c.Complete(context.Background(), ai.Prompt{User: "u"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, ai.Prompt{User: "u"})
	assert.ErrorContains(t, err, "rate limit wait")
}
