package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
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
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Store is the part of the article repository the summarizer needs.
type Store interface {
	GetWithSource(ctx context.Context, id uuid.UUID) (*repository.ArticleWithOwner, error)
	repository.SummaryStore
}

// Outcome is the result of one article's summarization attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "error"
	OutcomeNotFound Outcome = "not_found"
)

// Service summarizes articles under a process-wide concurrency limit.
type Service struct {
	Repo     Store
	AI       ai.Completer
	Taxonomy *config.Taxonomy
	Config   config.SummaryConfig
	Retry    retry.Config
	Now      func() time.Time

	sem *semaphore.Weighted
}

func NewService(repo Store, completer ai.Completer, taxonomy *config.Taxonomy, cfg config.SummaryConfig) *Service {
	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	return &Service{
		Repo:     repo,
		AI:       completer,
		Taxonomy: taxonomy,
		Config:   cfg,
		Retry:    retry.LLMConfig(cfg.MaxRetries),
		Now:      time.Now,
		sem:      semaphore.NewWeighted(int64(limit)),
	}
}

// SummarizeArticle runs the full per-article algorithm. Failures after the
// claim are recorded on the row; the returned error is informational and
// callers fanning out should not abort siblings on it.
func (s *Service) SummarizeArticle(ctx context.Context, id uuid.UUID) (outcome Outcome, err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return OutcomeFailed, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "summary.article", attribute.String("article.id", id.String()))
	logger := logging.FromContext(ctx).With(slog.String("article_id", id.String()))

	// claimed: このワーカーが processing に遷移させた / recorded: エラー記録済み
	claimed, recorded := false, false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in summarization",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("summarize panic: %v", r)
			outcome = OutcomeFailed
		}
		if err != nil && claimed && !recorded {
			s.markProcessingError(ctx, id, err)
		}
		metrics.RecordArticleSummarized(string(outcome))
		span.SetAttributes(attribute.String("summary.outcome", string(outcome)))
		tracing.End(span, err)
	}()

	row, err := s.Repo.GetWithSource(ctx, id)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load article: %w", err)
	}
	if row == nil {
		logger.Warn("article not found")
		return OutcomeNotFound, nil
	}
	article := row.Article

	if s.shouldSkip(article) {
		ok, err := s.Repo.IgnoreSummary(ctx, id, ignoredReason)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("ignore summary: %w", err)
		}
		if !ok {
			return OutcomeConflict, nil
		}
		logger.Info("article skipped for summarization",
			slog.Int("content_chars", len([]rune(article.BodyText()))),
			slog.Bool("disregarded", article.IsDisregarded(s.Taxonomy.DisregardTag)))
		return OutcomeIgnored, nil
	}

	ok, err := s.Repo.ClaimSummary(ctx, id)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("claim summary: %w", err)
	}
	if !ok {
		logger.Info("article already being processed, skipping")
		return OutcomeConflict, nil
	}
	claimed = true

	text, err := s.generate(ctx, s.buildPrompt(article, row.SourceTitle))
	if err != nil {
		reason := fmt.Sprintf("Failed to get response from %s API after retries", s.AI.Name())
		if errors.Is(err, ErrInvalidSummary) {
			reason = invalidFormatReason
		}
		logger.Warn("summary generation failed", slog.Any("error", err))
		recorded = true
		if _, ferr := s.Repo.FailSummary(context.WithoutCancel(ctx), id, reason); ferr != nil {
			logger.Error("failed to record summary error", slog.Any("error", ferr))
		}
		return OutcomeFailed, err
	}

	done, err := s.Repo.CompleteSummary(ctx, id, text, s.Now())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("complete summary: %w", err)
	}
	if !done {
		return OutcomeConflict, nil
	}
	metrics.RecordSummarizationDuration(time.Since(start))
	logger.Info("summary generated", slog.Int("summary_chars", len([]rune(text))))
	return OutcomeSuccess, nil
}

// generate calls the provider with retry and a per-call timeout. An answer
// that fails validation is retried like a transport failure.
func (s *Service) generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	var summary string
	err := retry.WithBackoff(ctx, s.Retry, func() error {
		callCtx := ctx
		if s.Config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.Config.Timeout)
			defer cancel()
		}
		text, err := s.AI.Complete(callCtx, prompt)
		if err != nil {
			// 呼び出し単位のタイムアウトは再試行対象
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("summary call timed out after %s", s.Config.Timeout)
			}
			return err
		}
		valid, err := s.validate(text)
		if err != nil {
			return err
		}
		summary = valid
		return nil
	})
	return summary, err
}

// markProcessingError is the best-effort fallback for unexpected failures
// after the claim.
func (s *Service) markProcessingError(ctx context.Context, id uuid.UUID, cause error) {
	if _, err := s.Repo.FailSummary(context.WithoutCancel(ctx), id, "Processing error: "+cause.Error()); err != nil {
		logging.FromContext(ctx).Error("failed to update error status",
			slog.String("article_id", id.String()),
			slog.Any("error", err))
	}
}

// BatchResult tallies a fan-out.
type BatchResult struct {
	Success  int
	Ignored  int
	Conflict int
	Failed   int
	NotFound int
}

func (b *BatchResult) Total() int {
	return b.Success + b.Ignored + b.Conflict + b.Failed + b.NotFound
}

func (b *BatchResult) add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		b.Success++
	case OutcomeIgnored:
		b.Ignored++
	case OutcomeConflict:
		b.Conflict++
	case OutcomeNotFound:
		b.NotFound++
	default:
		b.Failed++
	}
}

func (b *BatchResult) merge(o BatchResult) {
	b.Success += o.Success
	b.Ignored += o.Ignored
	b.Conflict += o.Conflict
	b.Failed += o.Failed
	b.NotFound += o.NotFound
}

// SummarizeBatch summarizes ids concurrently. Individual failures are
// tallied, never propagated.
func (s *Service) SummarizeBatch(ctx context.Context, ids []uuid.UUID) BatchResult {
	var (
		mu  sync.Mutex
		res BatchResult
		eg  errgroup.Group
	)
	logger := logging.FromContext(ctx)
	for _, id := range ids {
		eg.Go(func() error {
			outcome, err := s.SummarizeArticle(ctx, id)
			if err != nil {
				logger.Warn("summarization failed",
					slog.String("article_id", id.String()),
					slog.Any("error", err))
			}
			mu.Lock()
			res.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return res
}

// ProcessPending summarizes labeled articles waiting for a summary. maxCount
// caps the number of articles attempted; 0 means no limit.
func (s *Service) ProcessPending(ctx context.Context, maxCount int) (BatchResult, error) {
	return s.process(ctx, entity.SummaryPending, maxCount)
}

// ProcessErrors retries articles whose summarization failed earlier.
func (s *Service) ProcessErrors(ctx context.Context, maxCount int) (BatchResult, error) {
	return s.process(ctx, entity.SummaryError, maxCount)
}

// HasWork reports whether any labeled article waits in status.
func (s *Service) HasWork(ctx context.Context, status entity.SummaryStatus) (bool, error) {
	n, err := s.Repo.CountSummaryCandidates(ctx, []entity.SummaryStatus{status})
	if err != nil {
		return false, fmt.Errorf("count %s summaries: %w", status, err)
	}
	return n > 0, nil
}

func (s *Service) process(ctx context.Context, status entity.SummaryStatus, maxCount int) (BatchResult, error) {
	logger := logging.FromContext(ctx).With(slog.String("summary_queue", string(status)))
	size := s.Config.BatchSize
	if size < 1 {
		size = 1
	}

	var total BatchResult
	seen := make(map[uuid.UUID]struct{})
	prevFull := false
	for maxCount == 0 || total.Total() < maxCount {
		if prevFull && s.Config.BatchDelay > 0 {
			if err := sleep(ctx, s.Config.BatchDelay); err != nil {
				return total, err
			}
		}

		want := size
		if maxCount > 0 {
			want = min(want, maxCount-total.Total())
		}
		ids, err := s.nextBatch(ctx, status, want, seen)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		res := s.SummarizeBatch(ctx, ids)
		total.merge(res)
		logger.Info("summary batch completed",
			slog.Int("articles", len(ids)),
			slog.Int("success", res.Success),
			slog.Int("ignored", res.Ignored),
			slog.Int("failed", res.Failed))
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		prevFull = len(ids) == size
	}
	return total, nil
}

func (s *Service) nextBatch(ctx context.Context, status entity.SummaryStatus, size int, seen map[uuid.UUID]struct{}) ([]uuid.UUID, error) {
	rows, err := s.Repo.ListSummaryCandidates(ctx, []entity.SummaryStatus{status}, size+len(seen))
	if err != nil {
		return nil, fmt.Errorf("list %s summaries: %w", status, err)
	}
	batch := make([]uuid.UUID, 0, size)
	for _, id := range rows {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, id)
		if len(batch) == size {
			break
		}
	}
	return batch, nil
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
