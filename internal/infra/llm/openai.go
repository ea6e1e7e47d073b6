// Package llm provides ai.Completer implementations for OpenAI-compatible
// APIs (DeepSeek by default) and Anthropic Claude.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ai-feed-reader/internal/resilience/circuitbreaker"
	"ai-feed-reader/internal/resilience/retry"
	"ai-feed-reader/internal/usecase/ai"
)

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey string
	// BaseURL of the API, e.g. https://api.deepseek.com
	BaseURL string
	Model   string
}

// OpenAI implements ai.Completer on top of go-openai. Retrying is left to the
// caller; the circuit breaker and the rate limiter are applied on every call.
type OpenAI struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.Breaker
	limiter        *RateLimiter
	model          string
	name           string
}

// NewOpenAI builds the client eagerly. limiter may be nil.
func NewOpenAI(cfg OpenAIConfig, limiter *RateLimiter) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	name := "openai"
	if strings.Contains(clientCfg.BaseURL, "deepseek") {
		name = "deepseek"
	}

	slog.Info("Initialized OpenAI-compatible completer",
		slog.String("provider", name),
		slog.String("model", cfg.Model))

	return &OpenAI{
		client:         openai.NewClientWithConfig(clientCfg),
		circuitBreaker: circuitbreaker.New(circuitbreaker.LLM(name)),
		limiter:        limiter,
		model:          cfg.Model,
		name:           name,
	}
}

func (o *OpenAI) Name() string { return o.name }

// Complete sends p as a system + user chat completion.
func (o *OpenAI) Complete(ctx context.Context, p ai.Prompt) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	out, err := circuitbreaker.Do(o.circuitBreaker, func() (string, error) {
		return o.doComplete(ctx, p)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		// 開いている間は再試行しない
		return "", retry.Permanent(fmt.Errorf("%s api unavailable: %w", o.name, err))
	}
	return out, err
}

func (o *OpenAI) doComplete(ctx context.Context, p ai.Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	}
	if p.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)
	recordCompletion(o.name, duration, err)

	if err != nil {
		slog.ErrorContext(ctx, "Completion failed",
			slog.String("provider", o.name),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%s api error: %w", o.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: %w", o.name, ai.ErrEmptyResponse)
	}
	recordTokens(o.name, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

	slog.DebugContext(ctx, "Completion received",
		slog.String("provider", o.name),
		slog.Int("length", len([]rune(resp.Choices[0].Message.Content))),
		slog.Duration("duration", duration))

	return resp.Choices[0].Message.Content, nil
}
