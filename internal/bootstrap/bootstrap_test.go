package bootstrap

import (
	"bytes"
	"crypto/tls"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAIEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AI_PROVIDER", "DEEPSEEK_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"AI_BASE_URL", "AI_MODEL", "AI_BATCH_SIZE", "AI_REQUESTS_PER_SECOND",
		"LABEL_TAXONOMY_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAI(t *testing.T) {
	clearAIEnv(t)
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("AI_BATCH_SIZE", "many")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	reg := prometheus.NewRegistry()

	stack, err := LoadAI(logger, reg)

	require.NoError(t, err)
	assert.Equal(t, "deepseek", stack.Completer.Name())
	assert.Equal(t, 3, stack.Config.Label.BatchSize)
	assert.NotEmpty(t, stack.Taxonomy.DisregardTag)
	assert.Contains(t, buf.String(), "key=AI_BATCH_SIZE")

	fallbacks, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, fallbacks)
}

func TestLoadAI_MissingKey(t *testing.T) {
	clearAIEnv(t)

	_, err := LoadAI(slog.New(slog.DiscardHandler), nil)

	assert.ErrorContains(t, err, "API_KEY")
}

func TestLoadAI_BadTaxonomyFile(t *testing.T) {
	clearAIEnv(t)
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("LABEL_TAXONOMY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadAI(slog.New(slog.DiscardHandler), prometheus.NewRegistry())

	assert.ErrorContains(t, err, "load taxonomy")
}

func TestLoadAI_RecordsNoFallback(t *testing.T) {
	clearAIEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("AI_PROVIDER", "claude")
	reg := prometheus.NewRegistry()

	stack, err := LoadAI(slog.New(slog.DiscardHandler), reg)

	require.NoError(t, err)
	assert.Equal(t, "claude", stack.Completer.Name())
	assert.Equal(t, 0, testutil.CollectAndCount(reg, "ai_config_fallbacks_total"))
}

func TestHTTPClient(t *testing.T) {
	c := HTTPClient()

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.NotZero(t, c.Timeout)
}
