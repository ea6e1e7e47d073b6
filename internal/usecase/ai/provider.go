// Package ai defines the provider-neutral completion contract shared by the
// labeler and the summarizer.
package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from AI provider")

// Prompt is a single-turn chat request.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a single JSON object as the whole answer.
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Completer abstracts the LLM backend (DeepSeek/OpenAI-compatible or Claude)
// so that business logic does not depend on a concrete SDK.
type Completer interface {
	// Complete returns the model's text answer.
	Complete(ctx context.Context, p Prompt) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
