package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/usecase/ingest"
	"ai-feed-reader/internal/usecase/label"
	"ai-feed-reader/internal/usecase/summary"

	"github.com/robfig/cron/v3"
)

const (
	JobFeed         = "feed_ingest"
	JobLabel        = "label_pending"
	JobLabelRetry   = "label_retry"
	JobSummary      = "summary_pending"
	JobSummaryRetry = "summary_retry"

	statusSuccess = "success"
	statusFailure = "failure"
	statusSkipped = "skipped"
)

type SourceLister interface {
	ListForFetch(ctx context.Context) ([]*entity.Source, error)
}

type FeedIngestor interface {
	IngestSource(ctx context.Context, src *entity.Source, supplied *entity.Feed) (*ingest.Result, error)
}

type Labeler interface {
	ProcessPending(ctx context.Context, maxBatches int, drainAll bool) (*label.RunResult, error)
	ProcessErrors(ctx context.Context, maxBatches int) (*label.RunResult, error)
	HasWork(ctx context.Context, status entity.LabelStatus) (bool, error)
}

type Summarizer interface {
	ProcessPending(ctx context.Context, maxCount int) (summary.BatchResult, error)
	ProcessErrors(ctx context.Context, maxCount int) (summary.BatchResult, error)
	HasWork(ctx context.Context, status entity.SummaryStatus) (bool, error)
}

// FeedCycleResult summarizes one pass over every source.
type FeedCycleResult struct {
	Sources  int
	Failed   int
	Inserted int
}

// Scheduler owns the periodic jobs of the worker. Every job runs in its own
// goroutine, so a slow run never delays the next tick. Overlapping runs of the
// same job are safe because every article transition is a CAS update.
type Scheduler struct {
	cfg        *WorkerConfig
	sources    SourceLister
	ingestor   FeedIngestor
	labeler    Labeler
	summarizer Summarizer
	metrics    *WorkerMetrics
	logger     *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	cfg *WorkerConfig,
	sources SourceLister,
	ingestor FeedIngestor,
	labeler Labeler,
	summarizer Summarizer,
	metrics *WorkerMetrics,
	logger *slog.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	return &Scheduler{
		cfg:        cfg,
		sources:    sources,
		ingestor:   ingestor,
		labeler:    labeler,
		summarizer: summarizer,
		metrics:    metrics,
		logger:     logger,
		cron:       cron.New(cron.WithLocation(cfg.Location())),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the jobs and starts the timers.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name  string
		every time.Duration
		fn    func(context.Context) (int, bool, error)
	}{
		{JobFeed, s.cfg.FeedInterval, s.feedJob},
		{JobLabelRetry, s.cfg.LabelRetryInterval, s.labelRetryJob},
		{JobSummary, s.cfg.SummaryInterval, s.summaryJob},
		{JobSummaryRetry, s.cfg.SummaryRetryInterval, s.summaryRetryJob},
	}
	for _, j := range jobs {
		schedule := fmt.Sprintf("@every %s", j.every)
		if _, err := s.cron.AddFunc(schedule, func() { s.run(j.name, j.fn) }); err != nil {
			return fmt.Errorf("schedule %s (%s): %w", j.name, schedule, err)
		}
		s.logger.Info("job scheduled", slog.String("job", j.name), slog.String("schedule", schedule))
	}
	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("timezone", s.cfg.Timezone))
	return nil
}

// Stop stops the timers, cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow triggers one run of job outside the timer.
func (s *Scheduler) RunNow(job string) error {
	fns := map[string]func(context.Context) (int, bool, error){
		JobFeed:         s.feedJob,
		JobLabel:        s.labelJob,
		JobLabelRetry:   s.labelRetryJob,
		JobSummary:      s.summaryJob,
		JobSummaryRetry: s.summaryRetryJob,
	}
	fn, ok := fns[job]
	if !ok {
		return fmt.Errorf("unknown job %q", job)
	}
	s.spawn(func() { s.run(job, fn) })
	return nil
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// run executes one job with a timeout and records its outcome. A panic is
// logged and counted as a failure.
func (s *Scheduler) run(job string, fn func(context.Context) (int, bool, error)) {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(logging.WithJob(s.ctx, job), s.cfg.JobTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	start := time.Now()
	status := statusFailure
	items := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", slog.Any("panic", r))
			status = statusFailure
		}
		s.metrics.RecordJob(job, status, time.Since(start), items)
	}()

	n, skipped, err := fn(ctx)
	items = n
	switch {
	case err != nil:
		logger.Error("job failed", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
	case skipped:
		status = statusSkipped
		logger.Debug("job skipped, nothing to do")
	default:
		status = statusSuccess
		logger.Info("job completed", slog.Int("items", n), slog.Duration("duration", time.Since(start)))
	}
}

func (s *Scheduler) feedJob(ctx context.Context) (int, bool, error) {
	res, err := s.RunFeedCycle(ctx)
	if err != nil {
		return 0, false, err
	}
	// 次のティックを待たせないよう、ラベル付けは別ゴルーチンで
	s.spawn(func() { s.run(JobLabel, s.labelJob) })
	return res.Sources, false, nil
}

// RunFeedCycle ingests every source one after another, least recently
// fetched first, pausing SourceFetchGap between two sources. A failing
// source is logged and skipped.
func (s *Scheduler) RunFeedCycle(ctx context.Context) (FeedCycleResult, error) {
	logger := logging.FromContext(ctx)

	sources, err := s.sources.ListForFetch(ctx)
	if err != nil {
		return FeedCycleResult{}, fmt.Errorf("list sources: %w", err)
	}
	logger.Info("feed cycle started", slog.Int("sources", len(sources)))

	var res FeedCycleResult
	for i, src := range sources {
		if i > 0 && s.cfg.SourceFetchGap > 0 {
			if err := sleep(ctx, s.cfg.SourceFetchGap); err != nil {
				return res, err
			}
		}
		res.Sources++

		r, err := s.ingestor.IngestSource(ctx, src, nil)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			logger.Warn("source ingest failed",
				slog.Int("index", i+1),
				slog.Int("total", len(sources)),
				slog.String("source_id", src.ID.String()),
				slog.String("url", src.URL),
				slog.Any("error", err))
			continue
		}
		res.Inserted += r.Inserted
	}

	logger.Info("feed cycle completed",
		slog.Int("sources", res.Sources),
		slog.Int("failed", res.Failed),
		slog.Int("inserted", res.Inserted))
	return res, nil
}

func (s *Scheduler) labelJob(ctx context.Context) (int, bool, error) {
	res, err := s.labeler.ProcessPending(ctx, 0, false)
	if res == nil {
		return 0, false, err
	}
	return res.Labeled + res.Trashed, false, err
}

func (s *Scheduler) labelRetryJob(ctx context.Context) (int, bool, error) {
	ok, err := s.labeler.HasWork(ctx, entity.LabelError)
	if err != nil || !ok {
		return 0, !ok, err
	}
	res, err := s.labeler.ProcessErrors(ctx, 0)
	if res == nil {
		return 0, false, err
	}
	return res.Labeled + res.Trashed, false, err
}

func (s *Scheduler) summaryJob(ctx context.Context) (int, bool, error) {
	return s.summarize(ctx, entity.SummaryPending, s.summarizer.ProcessPending)
}

func (s *Scheduler) summaryRetryJob(ctx context.Context) (int, bool, error) {
	return s.summarize(ctx, entity.SummaryError, s.summarizer.ProcessErrors)
}

func (s *Scheduler) summarize(ctx context.Context, status entity.SummaryStatus, process func(context.Context, int) (summary.BatchResult, error)) (int, bool, error) {
	ok, err := s.summarizer.HasWork(ctx, status)
	if err != nil || !ok {
		return 0, !ok, err
	}
	res, err := process(ctx, 0)
	return res.Success, false, err
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
