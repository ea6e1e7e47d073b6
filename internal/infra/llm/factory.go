package llm

import (
	"fmt"

	"ai-feed-reader/internal/config"
	"ai-feed-reader/internal/usecase/ai"
)

// New builds the completer selected by cfg.Provider.
func New(cfg *config.AIConfig, limiter *RateLimiter) (ai.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, limiter), nil
	case config.ProviderClaude:
		return NewClaude(ClaudeConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.ClaudeModel}, limiter), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}
