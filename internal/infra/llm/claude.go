package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"ai-feed-reader/internal/resilience/circuitbreaker"
	"ai-feed-reader/internal/resilience/retry"
	"ai-feed-reader/internal/usecase/ai"
)

// Claude has no JSON response mode, so the instruction goes into the system prompt.
const jsonInstruction = "Respond with a single JSON object and nothing else."

type ClaudeConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint. Empty means the SDK default.
	BaseURL string
}

// Claude implements ai.Completer using Anthropic's Messages API.
type Claude struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.Breaker
	limiter        *RateLimiter
	model          string
}

func NewClaude(cfg ClaudeConfig, limiter *RateLimiter) *Claude {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	slog.Info("Initialized Claude completer", slog.String("model", cfg.Model))

	return &Claude{
		client:         anthropic.NewClient(opts...),
		circuitBreaker: circuitbreaker.New(circuitbreaker.LLM("claude")),
		limiter:        limiter,
		model:          cfg.Model,
	}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Complete(ctx context.Context, p ai.Prompt) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	out, err := circuitbreaker.Do(c.circuitBreaker, func() (string, error) {
		return c.doComplete(ctx, p)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", retry.Permanent(fmt.Errorf("claude api unavailable: %w", err))
	}
	return out, err
}

func (c *Claude) doComplete(ctx context.Context, p ai.Prompt) (string, error) {
	requestID := uuid.New().String()

	system := p.System
	if p.JSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(p.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
		Temperature: anthropic.Float(float64(p.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	duration := time.Since(start)
	recordCompletion("claude", duration, err)

	if err != nil {
		slog.ErrorContext(ctx, "Completion failed",
			slog.String("request_id", requestID),
			slog.String("provider", "claude"),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("claude api error: %w", err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("claude: %w", ai.ErrEmptyResponse)
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok || textBlock.Text == "" {
		return "", fmt.Errorf("claude: %w", ai.ErrEmptyResponse)
	}
	recordTokens("claude", message.Usage.InputTokens, message.Usage.OutputTokens)

	slog.DebugContext(ctx, "Completion received",
		slog.String("request_id", requestID),
		slog.String("provider", "claude"),
		slog.Int("length", len([]rune(textBlock.Text))),
		slog.Duration("duration", duration))

	return textBlock.Text, nil
}
