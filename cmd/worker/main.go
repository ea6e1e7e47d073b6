package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ai-feed-reader/internal/bootstrap"
	pgRepo "ai-feed-reader/internal/infra/adapter/persistence/postgres"
	"ai-feed-reader/internal/infra/feedcache"
	"ai-feed-reader/internal/infra/fetcher"
	"ai-feed-reader/internal/infra/scraper"
	workerPkg "ai-feed-reader/internal/infra/worker"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/repository"
	"ai-feed-reader/internal/usecase/ingest"
	"ai-feed-reader/internal/usecase/label"
	"ai-feed-reader/internal/usecase/summary"
)

// summaryQueueCapacity is the number of labeled sets buffered for the summary worker.
const summaryQueueCapacity = 16

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := bootstrap.OpenDatabase(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics(prometheus.DefaultRegisterer)
	workerConfig, warnings := workerPkg.LoadConfigFromEnv()
	bootstrap.LogWarnings(logger, "worker", warnings)
	workerMetrics.Record(warnings.Keys())
	logger.Info("worker configuration loaded",
		slog.Duration("feed_interval", workerConfig.FeedInterval),
		slog.Duration("label_retry_interval", workerConfig.LabelRetryInterval),
		slog.Duration("summary_interval", workerConfig.SummaryInterval),
		slog.Duration("summary_retry_interval", workerConfig.SummaryRetryInterval),
		slog.Duration("source_fetch_gap", workerConfig.SourceFetchGap),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("job_timeout", workerConfig.JobTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	aiStack, err := bootstrap.LoadAI(logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to initialize AI provider", slog.Any("error", err))
		os.Exit(1)
	}

	srcRepo := pgRepo.NewSourceRepo(database)
	artRepo := pgRepo.NewArticleRepo(database)
	cache := feedcache.New(feedcache.Config{TTL: workerConfig.FeedCacheTTL, MaxSize: workerConfig.FeedCacheMaxSize})

	ingestSvc := setupIngestService(logger, srcRepo, artRepo, cache)
	summarySvc := summary.NewService(artRepo, aiStack.Completer, aiStack.Taxonomy, aiStack.Config.Summary)
	queue := summary.NewQueue(summarySvc, summaryQueueCapacity)
	labelSvc := label.NewService(artRepo, aiStack.Completer, aiStack.Taxonomy, aiStack.Config.Label, queue)

	// 要約ワーカーはシャットダウン時にキューを捌き切るため、独立したコンテキストで動かす
	queueCtx, queueCancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer queueCancel()
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(queueCtx)
	}()

	startMetricsServer(ctx, logger, database, cache)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, database.PingContext)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	scheduler := workerPkg.NewScheduler(workerConfig, srcRepo, ingestSvc, labelSvc, summarySvc, workerMetrics, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	if os.Getenv("WORKER_RUN_ON_START") == "true" {
		if err := scheduler.RunNow(workerPkg.JobFeed); err != nil {
			logger.Error("failed to trigger initial feed cycle", slog.Any("error", err))
		}
	}

	healthServer.SetReady(true)
	logger.Info("worker started")

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)
	shutdown(logger, scheduler, queue, queueDone, queueCancel)
}

// setupIngestService wires the feed fetcher and the optional full-text fetcher.
func setupIngestService(logger *slog.Logger, srcRepo repository.SourceRepository, artRepo repository.ArticleRepository, cache *feedcache.Cache) *ingest.Service {
	feedFetcher := scraper.NewRSSFetcher(bootstrap.HTTPClient())

	contentFetchConfig, warnings := fetcher.LoadConfigFromEnv()
	bootstrap.LogWarnings(logger, "content fetch", warnings)

	var contentFetcher ingest.ContentFetcher
	if contentFetchConfig.Enabled {
		contentFetcher = fetcher.NewReadabilityFetcher(contentFetchConfig)
		logger.Info("content fetching enabled",
			slog.Int("threshold", contentFetchConfig.Threshold),
			slog.Duration("timeout", contentFetchConfig.Timeout))
	} else {
		logger.Info("content fetching disabled")
	}

	return ingest.NewService(srcRepo, artRepo, feedFetcher, cache, contentFetcher)
}

// shutdown stops the timers, then lets the summary worker finish what the
// last labeling runs enqueued.
func shutdown(logger *slog.Logger, scheduler *workerPkg.Scheduler, queue *summary.Queue, queueDone <-chan struct{}, queueCancel context.CancelFunc) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(stopCtx); err != nil {
		logger.Warn("scheduler did not stop in time", slog.Any("error", err))
	}

	queue.Close()
	select {
	case <-queueDone:
	case <-stopCtx.Done():
		logger.Warn("summary queue not drained before timeout", slog.Int("pending_sets", queue.Len()))
		queueCancel()
		<-queueDone
	}
	logger.Info("worker stopped")
}
