package llm_test

import (
	"testing"

	"ai-feed-reader/internal/config"
	"ai-feed-reader/internal/infra/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg := config.DefaultAIConfig()
	cfg.APIKey = "sk"

	c, err := llm.New(&cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", c.Name())

	cfg.Provider = config.ProviderClaude
	c, err = llm.New(&cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())

	cfg.Provider = "gemini"
	_, err = llm.New(&cfg, nil)
	assert.Error(t, err)
}
