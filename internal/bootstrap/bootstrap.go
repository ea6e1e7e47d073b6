// Package bootstrap builds the collaborators shared by the worker and the
// operational CLIs.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ai-feed-reader/internal/config"
	"ai-feed-reader/internal/infra/db"
	"ai-feed-reader/internal/infra/llm"
	envconfig "ai-feed-reader/internal/pkg/config"
	"ai-feed-reader/internal/usecase/ai"

	"github.com/prometheus/client_golang/prometheus"
)

// OpenDatabase connects to DATABASE_URL and applies the schema.
func OpenDatabase(ctx context.Context) (*sql.DB, error) {
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// AI is the LLM side of the pipeline.
type AI struct {
	Config    *config.AIConfig
	Taxonomy  *config.Taxonomy
	Completer ai.Completer
}

// LoadAI reads the AI configuration and the label taxonomy and constructs the
// completer. Fallbacks are logged and, when reg is non-nil, counted under the
// "ai" config metrics.
func LoadAI(logger *slog.Logger, reg prometheus.Registerer) (*AI, error) {
	cfg, warnings, err := config.LoadAIConfig()
	LogWarnings(logger, "AI", warnings)
	if reg != nil {
		envconfig.NewConfigMetrics(reg, "ai").Record(warnings.Keys())
	}
	if err != nil {
		return nil, err
	}

	taxonomy, err := config.LoadTaxonomy(os.Getenv("LABEL_TAXONOMY_FILE"))
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	limiter := llm.NewRateLimiter(cfg.RequestsPerSecond, 1)
	completer, err := llm.New(cfg, limiter)
	if err != nil {
		return nil, err
	}

	logger.Info("AI provider initialized",
		slog.String("provider", completer.Name()),
		slog.Float64("requests_per_second", cfg.RequestsPerSecond),
		slog.Int("label_batch_size", cfg.Label.BatchSize),
		slog.Int("summary_max_concurrent", cfg.Summary.MaxConcurrent))
	return &AI{Config: cfg, Taxonomy: taxonomy, Completer: completer}, nil
}

// HTTPClient creates the feed HTTP client with timeouts and connection pooling.
// TLS 1.2+ is enforced.
func HTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// LogWarnings logs every configuration fallback of component.
func LogWarnings(logger *slog.Logger, component string, warnings envconfig.Warnings) {
	for _, w := range warnings {
		logger.Warn(component+" configuration fallback",
			slog.String("key", w.Key),
			slog.String("warning", w.Message))
	}
}
