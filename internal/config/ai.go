package config

import (
	"errors"
	"fmt"
	"time"

	envconfig "ai-feed-reader/internal/pkg/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// AIConfig holds the LLM provider settings and the labeling/summarization
// pipeline tunables.
type AIConfig struct {
	// Provider selects the completer: "openai" (any OpenAI-compatible API,
	// DeepSeek by default) or "claude".
	Provider string

	// APIKey for the OpenAI-compatible provider. DEEPSEEK_API_KEY wins over OPENAI_API_KEY.
	APIKey string
	// BaseURL of the OpenAI-compatible API. Default: https://api.deepseek.com
	BaseURL string
	// Model for the OpenAI-compatible API. Default: deepseek-chat
	Model string

	AnthropicAPIKey string
	ClaudeModel     string

	// RequestsPerSecond caps outgoing LLM calls across labeler and summarizer.
	RequestsPerSecond float64

	Label   LabelConfig
	Summary SummaryConfig
}

// LabelConfig tunes the batch labeler.
type LabelConfig struct {
	// BatchSize is the number of articles per classification request. Default: 3
	BatchSize int
	// MaxRetries is the number of extra attempts per request. Default: 2
	MaxRetries int
	// BatchDelay is the pause between full batches. Default: 2s
	BatchDelay time.Duration
	// MaxContent truncates each article body in the request. Default: 3000
	MaxContent  int
	Temperature float32
	MaxTokens   int
}

// SummaryConfig tunes the summarizer.
type SummaryConfig struct {
	// BatchSize is the number of ids selected per driving-loop iteration. Default: 10
	BatchSize int
	// MaxConcurrent bounds in-flight summarizations. Default: 4
	MaxConcurrent int
	MaxRetries    int
	// Timeout bounds a single provider call. Default: 30s
	Timeout    time.Duration
	BatchDelay time.Duration
	// MinContent is the body length under which an article is ignored. Default: 100
	MinContent int
	// MaxContent truncates the body in the request. Default: 8000
	MaxContent int
	// MinLength is the shortest summary accepted. Default: 50
	MinLength   int
	Temperature float32
	MaxTokens   int
}

func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider:          ProviderOpenAI,
		BaseURL:           "https://api.deepseek.com",
		Model:             "deepseek-chat",
		ClaudeModel:       "claude-sonnet-4-5-20250929",
		RequestsPerSecond: 2,
		Label: LabelConfig{
			BatchSize:   3,
			MaxRetries:  2,
			BatchDelay:  2 * time.Second,
			MaxContent:  3000,
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Summary: SummaryConfig{
			BatchSize:     10,
			MaxConcurrent: 4,
			MaxRetries:    2,
			Timeout:       30 * time.Second,
			BatchDelay:    2 * time.Second,
			MinContent:    100,
			MaxContent:    8000,
			MinLength:     50,
			Temperature:   0.5,
			MaxTokens:     2000,
		},
	}
}

// LoadAIConfig reads the AI_* variables. Malformed values fall back to the
// defaults and are reported as warnings; a missing API key is an error.
func LoadAIConfig() (*AIConfig, envconfig.Warnings, error) {
	def := DefaultAIConfig()
	var w envconfig.Warnings

	apiKey := envconfig.LoadEnvString("DEEPSEEK_API_KEY", "")
	if apiKey == "" {
		apiKey = envconfig.LoadEnvString("OPENAI_API_KEY", "")
	}

	cfg := &AIConfig{
		Provider:          envconfig.Add(&w, envconfig.LoadEnvWithFallback("AI_PROVIDER", def.Provider, validateProvider)),
		APIKey:            apiKey,
		BaseURL:           envconfig.LoadEnvString("AI_BASE_URL", def.BaseURL),
		Model:             envconfig.LoadEnvString("AI_MODEL", def.Model),
		AnthropicAPIKey:   envconfig.LoadEnvString("ANTHROPIC_API_KEY", ""),
		ClaudeModel:       envconfig.LoadEnvString("AI_CLAUDE_MODEL", def.ClaudeModel),
		RequestsPerSecond: envconfig.Add(&w, envconfig.LoadEnvFloat("AI_REQUESTS_PER_SECOND", def.RequestsPerSecond, envconfig.ValidatePositiveFloat)),
		Label: LabelConfig{
			BatchSize:   envconfig.Add(&w, envconfig.LoadEnvInt("AI_BATCH_SIZE", def.Label.BatchSize, envconfig.IntRange(1, 20))),
			MaxRetries:  envconfig.Add(&w, envconfig.LoadEnvInt("AI_MAX_RETRIES", def.Label.MaxRetries, envconfig.IntRange(0, 10))),
			BatchDelay:  envconfig.Add(&w, envconfig.LoadEnvDuration("AI_BATCH_DELAY", def.Label.BatchDelay, envconfig.DurationRange(0, 5*time.Minute))),
			MaxContent:  def.Label.MaxContent,
			Temperature: def.Label.Temperature,
			MaxTokens:   def.Label.MaxTokens,
		},
		Summary: SummaryConfig{
			BatchSize:     envconfig.Add(&w, envconfig.LoadEnvInt("AI_SUMMARY_BATCH_SIZE", def.Summary.BatchSize, envconfig.IntRange(1, 100))),
			MaxConcurrent: envconfig.Add(&w, envconfig.LoadEnvInt("AI_SUMMARY_MAX_CONCURRENT", def.Summary.MaxConcurrent, envconfig.IntRange(1, 32))),
			MaxRetries:    envconfig.Add(&w, envconfig.LoadEnvInt("AI_MAX_RETRIES", def.Summary.MaxRetries, envconfig.IntRange(0, 10))),
			Timeout:       envconfig.Add(&w, envconfig.LoadEnvDuration("AI_SUMMARY_TIMEOUT", def.Summary.Timeout, envconfig.DurationRange(time.Second, 10*time.Minute))),
			BatchDelay:    envconfig.Add(&w, envconfig.LoadEnvDuration("AI_BATCH_DELAY", def.Summary.BatchDelay, envconfig.DurationRange(0, 5*time.Minute))),
			MinContent:    envconfig.Add(&w, envconfig.LoadEnvInt("AI_SUMMARY_MIN_CONTENT", def.Summary.MinContent, envconfig.IntRange(0, 10000))),
			MaxContent:    envconfig.Add(&w, envconfig.LoadEnvInt("AI_SUMMARY_MAX_CONTENT", def.Summary.MaxContent, envconfig.IntRange(500, 100000))),
			MinLength:     def.Summary.MinLength,
			Temperature:   def.Summary.Temperature,
			MaxTokens:     def.Summary.MaxTokens,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, w, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return cfg, w, nil
}

// Validate checks the provider credentials.
func (c *AIConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.APIKey == "" {
			return errors.New("DEEPSEEK_API_KEY or OPENAI_API_KEY is required")
		}
		if c.BaseURL == "" || c.Model == "" {
			return errors.New("AI_BASE_URL and AI_MODEL cannot be empty")
		}
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required")
		}
	default:
		return validateProvider(c.Provider)
	}
	if c.Label.BatchSize <= 0 || c.Summary.MaxConcurrent <= 0 {
		return errors.New("batch size and concurrency must be positive")
	}
	return nil
}

func validateProvider(p string) error {
	if p != ProviderOpenAI && p != ProviderClaude {
		return fmt.Errorf("unknown AI provider %q (want %s or %s)", p, ProviderOpenAI, ProviderClaude)
	}
	return nil
}
