package label

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"ai-feed-reader/internal/config"
	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/observability/metrics"
	"ai-feed-reader/internal/observability/tracing"
	"ai-feed-reader/internal/repository"
	"ai-feed-reader/internal/resilience/retry"
	"ai-feed-reader/internal/usecase/ai"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// SummaryQueue receives the articles that became eligible for summarization
// during a labeling run.
type SummaryQueue interface {
	Enqueue(ctx context.Context, ids []uuid.UUID) error
}

// Service runs labeling passes.
type Service struct {
	Repo      repository.LabelStore
	AI        ai.Completer
	Taxonomy  *config.Taxonomy
	Summaries SummaryQueue // nil disables the summarization trigger
	Config    config.LabelConfig
	Retry     retry.Config
	Now       func() time.Time

	systemPrompt string
}

func NewService(repo repository.LabelStore, completer ai.Completer, taxonomy *config.Taxonomy, cfg config.LabelConfig, summaries SummaryQueue) *Service {
	return &Service{
		Repo:         repo,
		AI:           completer,
		Taxonomy:     taxonomy,
		Summaries:    summaries,
		Config:       cfg,
		Retry:        retry.LLMConfig(cfg.MaxRetries),
		Now:          time.Now,
		systemPrompt: taxonomy.LabelerSystemPrompt(),
	}
}

// Options selects the queue and bounds of one run.
type Options struct {
	// From is the status rows are selected from: pending or error.
	From entity.LabelStatus
	// MaxBatches stops the run after that many batches. 0 means no limit.
	MaxBatches int
	// DrainAll processes a trailing pending batch smaller than the batch size.
	DrainAll bool
}

// RunResult tallies one run.
type RunResult struct {
	Batches  int
	Labeled  int
	Trashed  int
	Failed   int
	Skipped  int
	Deferred int
	// Summarize holds the labeled, non-disregarded articles handed to the summarizer.
	Summarize []uuid.UUID
}

func (r *RunResult) add(b *batchResult) {
	r.Batches++
	r.Labeled += b.labeled
	r.Trashed += b.trashed
	r.Failed += b.failed
	r.Skipped += b.skipped
	r.Summarize = append(r.Summarize, b.summarize...)
}

type batchResult struct {
	labeled   int
	trashed   int
	failed    int
	skipped   int
	summarize []uuid.UUID
}

// ProcessPending labels pending articles. Unless drainAll is set a trailing
// batch smaller than the batch size is left for a later run.
func (s *Service) ProcessPending(ctx context.Context, maxBatches int, drainAll bool) (*RunResult, error) {
	return s.Run(ctx, Options{From: entity.LabelPending, MaxBatches: maxBatches, DrainAll: drainAll})
}

// ProcessErrors retries articles whose labeling failed earlier.
func (s *Service) ProcessErrors(ctx context.Context, maxBatches int) (*RunResult, error) {
	return s.Run(ctx, Options{From: entity.LabelError, MaxBatches: maxBatches})
}

// HasWork reports whether any article waits in status.
func (s *Service) HasWork(ctx context.Context, status entity.LabelStatus) (bool, error) {
	n, err := s.Repo.CountByLabelStatus(ctx, status)
	if err != nil {
		return false, fmt.Errorf("count %s articles: %w", status, err)
	}
	return n > 0, nil
}

// Run processes batches until the queue is empty, the batch cap is reached
// or the minimum batch gate defers the rest. A failing batch never stops the
// run. The summarization trigger fires once, after the last batch.
func (s *Service) Run(ctx context.Context, opts Options) (*RunResult, error) {
	if opts.From != entity.LabelPending && opts.From != entity.LabelError {
		return nil, fmt.Errorf("label run from %q: %w", opts.From, entity.ErrInvalidTransition)
	}
	logger := logging.FromContext(ctx).With(slog.String("label_queue", string(opts.From)))

	size := s.Config.BatchSize
	if size < 1 {
		size = 1
	}
	gate := opts.From == entity.LabelPending && !opts.DrainAll

	res := &RunResult{}
	seen := make(map[uuid.UUID]struct{})
	prevFull := false

	var runErr error
	for opts.MaxBatches == 0 || res.Batches < opts.MaxBatches {
		if prevFull && s.Config.BatchDelay > 0 {
			if err := sleep(ctx, s.Config.BatchDelay); err != nil {
				runErr = err
				break
			}
		}

		batch, err := s.nextBatch(ctx, opts.From, size, seen)
		if err != nil {
			runErr = err
			break
		}
		if len(batch) == 0 {
			break
		}
		if gate && len(batch) < size {
			res.Deferred = len(batch)
			logger.Info("not enough pending articles for a full batch, waiting for more",
				slog.Int("pending", len(batch)),
				slog.Int("batch_size", size))
			break
		}

		br, err := s.processBatch(ctx, opts.From, batch)
		if br != nil {
			res.add(br)
		}
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			logger.Error("label batch failed, continuing with next batch",
				slog.Int("batch", res.Batches),
				slog.Any("error", err))
		}
		prevFull = len(batch) == size
	}

	s.triggerSummaries(ctx, res)

	logger.Info("label run completed",
		slog.Int("batches", res.Batches),
		slog.Int("labeled", res.Labeled),
		slog.Int("trashed", res.Trashed),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped))
	return res, runErr
}

// nextBatch selects the oldest rows in status that this run has not touched yet.
func (s *Service) nextBatch(ctx context.Context, status entity.LabelStatus, size int, seen map[uuid.UUID]struct{}) ([]entity.ArticleWithSource, error) {
	rows, err := s.Repo.ListByLabelStatus(ctx, status, size+len(seen))
	if err != nil {
		return nil, fmt.Errorf("list %s articles: %w", status, err)
	}
	batch := make([]entity.ArticleWithSource, 0, size)
	for _, r := range rows {
		if _, ok := seen[r.Article.ID]; ok {
			continue
		}
		seen[r.Article.ID] = struct{}{}
		batch = append(batch, r)
		if len(batch) == size {
			break
		}
	}
	return batch, nil
}

func (s *Service) triggerSummaries(ctx context.Context, res *RunResult) {
	if s.Summaries == nil || len(res.Summarize) == 0 {
		return
	}
	if err := s.Summaries.Enqueue(context.WithoutCancel(ctx), res.Summarize); err != nil {
		logging.FromContext(ctx).Warn("failed to enqueue articles for summarization",
			slog.Int("count", len(res.Summarize)),
			slog.Any("error", err))
	}
}

// processBatch labels one batch. Rows that are still processing when it
// returns with an error, or panics, are released to from.
func (s *Service) processBatch(ctx context.Context, from entity.LabelStatus, batch []entity.ArticleWithSource) (res *batchResult, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "label.batch",
		attribute.Int("batch.size", len(batch)),
		attribute.String("label.from", string(from)))
	defer func() { tracing.End(span, err) }()

	logger := logging.FromContext(ctx)
	res = &batchResult{}

	claimed := make([]entity.ArticleWithSource, 0, len(batch))
	open := make(map[uuid.UUID]struct{}, len(batch))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in label batch",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("label batch panic: %v", r)
		}
		if err != nil {
			s.release(ctx, open, from)
		}
		metrics.RecordLabelBatch(time.Since(start))
	}()

	for _, a := range batch {
		ok, err := s.Repo.ClaimLabel(ctx, a.Article.ID, from)
		if err != nil {
			return res, fmt.Errorf("claim article %s: %w", a.Article.ID, err)
		}
		if !ok {
			// 他のワーカーが処理中
			res.skipped++
			metrics.RecordArticleLabeled("conflict")
			continue
		}
		claimed = append(claimed, a)
		open[a.Article.ID] = struct{}{}
	}
	if len(claimed) == 0 {
		return res, nil
	}

	items, err := s.classify(ctx, claimed)
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		reason := fmt.Sprintf("Failed to get response from %s API after retries", s.AI.Name())
		logger.Error("classifier returned no result, marking batch as error",
			slog.Int("articles", len(claimed)),
			slog.Any("error", err))
		for _, a := range claimed {
			if err := s.fail(ctx, a.Article.ID, reason, open, res); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	ids := make([]uuid.UUID, 0, len(claimed))
	for _, a := range claimed {
		ids = append(ids, a.Article.ID)
	}
	labelsByID := mapLabels(items, ids)

	for _, a := range claimed {
		id := a.Article.ID
		labels, ok := labelsByID[id]
		if !ok {
			logger.Warn("no labels returned for article", slog.String("article_id", id.String()))
			if err := s.fail(ctx, id, noLabelsReason, open, res); err != nil {
				return res, err
			}
			continue
		}

		trash := labels.HasIdentity(s.Taxonomy.DisregardTag)
		done, err := s.Repo.CompleteLabel(ctx, id, labels, trash, s.Now())
		if err != nil {
			return res, fmt.Errorf("complete label %s: %w", id, err)
		}
		delete(open, id)
		if !done {
			res.skipped++
			metrics.RecordArticleLabeled("conflict")
			continue
		}
		res.labeled++
		if trash {
			res.trashed++
			metrics.RecordArticleLabeled("trashed")
		} else {
			res.summarize = append(res.summarize, id)
			metrics.RecordArticleLabeled("done")
		}
		logger.Debug("article labeled",
			slog.String("article_id", id.String()),
			slog.Any("identities", labels.Identities),
			slog.Any("themes", labels.Themes),
			slog.Bool("trashed", trash))
	}
	return res, nil
}

// classify calls the provider with retry. Undecodable answers are retried like
// transport failures.
func (s *Service) classify(ctx context.Context, batch []entity.ArticleWithSource) ([]labelItem, error) {
	prompt, err := s.buildPrompt(batch)
	if err != nil {
		return nil, err
	}

	var items []labelItem
	err = retry.WithBackoff(ctx, s.Retry, func() error {
		text, err := s.AI.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		decoded, shape, err := decodeResponse(text)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Debug("classifier response decoded",
			slog.String("shape", string(shape)),
			slog.Int("items", len(decoded)))
		items = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}
	return items, nil
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, reason string, open map[uuid.UUID]struct{}, res *batchResult) error {
	ok, err := s.Repo.FailLabel(ctx, id, reason)
	if err != nil {
		return fmt.Errorf("fail label %s: %w", id, err)
	}
	delete(open, id)
	if !ok {
		res.skipped++
		metrics.RecordArticleLabeled("conflict")
		return nil
	}
	res.failed++
	metrics.RecordArticleLabeled("error")
	return nil
}

// release puts rows this batch still holds back to from.
func (s *Service) release(ctx context.Context, open map[uuid.UUID]struct{}, from entity.LabelStatus) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.FromContext(ctx)
	for id := range open {
		if _, err := s.Repo.ReleaseLabel(ctx, id, from); err != nil {
			logger.Error("failed to release article",
				slog.String("article_id", id.String()),
				slog.Any("error", err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
