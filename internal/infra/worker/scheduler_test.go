package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/usecase/ingest"
	"ai-feed-reader/internal/usecase/label"
	"ai-feed-reader/internal/usecase/summary"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───────── スタブ ───────── */

type stubSources struct {
	sources []*entity.Source
	err     error
}

func (s *stubSources) ListForFetch(context.Context) ([]*entity.Source, error) {
	return s.sources, s.err
}

type ingestCall struct {
	id uuid.UUID
	at time.Time
}

type stubIngestor struct {
	mu    sync.Mutex
	calls []ingestCall
	fail  map[uuid.UUID]error
}

func (s *stubIngestor) IngestSource(_ context.Context, src *entity.Source, supplied *entity.Feed) (*ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ingestCall{id: src.ID, at: time.Now()})
	if err := s.fail[src.ID]; err != nil {
		return nil, err
	}
	return &ingest.Result{SourceID: src.ID, Inserted: 2}, nil
}

func (s *stubIngestor) ids() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.id)
	}
	return out
}

type stubLabeler struct {
	mu       sync.Mutex
	pending  []bool
	errors   int
	hasError bool
	panics   bool
}

func (s *stubLabeler) ProcessPending(_ context.Context, _ int, drainAll bool) (*label.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, drainAll)
	return &label.RunResult{Labeled: 3, Trashed: 1}, nil
}

func (s *stubLabeler) ProcessErrors(context.Context, int) (*label.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	if s.panics {
		panic("boom")
	}
	return &label.RunResult{Labeled: 1}, nil
}

func (s *stubLabeler) HasWork(_ context.Context, status entity.LabelStatus) (bool, error) {
	return status == entity.LabelError && s.hasError, nil
}

type stubSummarizer struct {
	mu      sync.Mutex
	pending int
	errors  int
	work    map[entity.SummaryStatus]bool
	workErr error
	runErr  error
}

func (s *stubSummarizer) ProcessPending(context.Context, int) (summary.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	return summary.BatchResult{Success: 4, Ignored: 1}, s.runErr
}

func (s *stubSummarizer) ProcessErrors(context.Context, int) (summary.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	return summary.BatchResult{Success: 2}, s.runErr
}

func (s *stubSummarizer) HasWork(_ context.Context, status entity.SummaryStatus) (bool, error) {
	return s.work[status], s.workErr
}

/* ───────── ヘルパ ───────── */

type fixture struct {
	sched    *Scheduler
	sources  *stubSources
	ingestor *stubIngestor
	labeler  *stubLabeler
	summary  *stubSummarizer
	metrics  *WorkerMetrics
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SourceFetchGap = 0

	f := &fixture{
		sources:  &stubSources{},
		ingestor: &stubIngestor{fail: map[uuid.UUID]error{}},
		labeler:  &stubLabeler{},
		summary:  &stubSummarizer{work: map[entity.SummaryStatus]bool{}},
		metrics:  NewWorkerMetrics(prometheus.NewRegistry()),
	}
	for range n {
		f.sources.sources = append(f.sources.sources, &entity.Source{ID: uuid.New(), URL: "https://example.com/feed"})
	}
	f.sched = NewScheduler(cfg, f.sources, f.ingestor, f.labeler, f.summary, f.metrics, discardLogger())
	return f
}

// runAndWait triggers job and waits for it, and everything it spawned, to finish.
func (f *fixture) runAndWait(t *testing.T, job string) {
	t.Helper()
	require.NoError(t, f.sched.RunNow(job))
	f.sched.wg.Wait()
}

func (f *fixture) runs(job, status string) float64 {
	return testutil.ToFloat64(f.metrics.JobRunsTotal.WithLabelValues(job, status))
}

/* ───────── フィード ───────── */

func TestRunFeedCycle_SequentialInOrder(t *testing.T) {
	f := newFixture(t, 3)

	res, err := f.sched.RunFeedCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, FeedCycleResult{Sources: 3, Inserted: 6}, res)
	want := []uuid.UUID{f.sources.sources[0].ID, f.sources.sources[1].ID, f.sources.sources[2].ID}
	assert.Equal(t, want, f.ingestor.ids())
}

func TestRunFeedCycle_GapBetweenSources(t *testing.T) {
	f := newFixture(t, 3)
	f.sched.cfg.SourceFetchGap = 30 * time.Millisecond

	start := time.Now()
	_, err := f.sched.RunFeedCycle(context.Background())
	require.NoError(t, err)

	calls := f.ingestor.calls
	require.Len(t, calls, 3)
	// no pause before the first source
	assert.Less(t, calls[0].at.Sub(start), 30*time.Millisecond)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].at.Sub(calls[i-1].at), 30*time.Millisecond)
	}
}

func TestRunFeedCycle_FailingSourceDoesNotStopCycle(t *testing.T) {
	f := newFixture(t, 3)
	f.ingestor.fail[f.sources.sources[1].ID] = ingest.ErrFeedFetchFailed

	res, err := f.sched.RunFeedCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, FeedCycleResult{Sources: 3, Failed: 1, Inserted: 4}, res)
	assert.Len(t, f.ingestor.ids(), 3)
}

func TestRunFeedCycle_CancelledDuringGap(t *testing.T) {
	f := newFixture(t, 2)
	f.sched.cfg.SourceFetchGap = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := f.sched.RunFeedCycle(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.Sources)
	assert.Len(t, f.ingestor.ids(), 1)
}

func TestRunFeedCycle_ListFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.sources.err = errors.New("db down")

	_, err := f.sched.RunFeedCycle(context.Background())

	assert.ErrorContains(t, err, "list sources")
}

func TestFeedJob_KicksOffLabeling(t *testing.T) {
	f := newFixture(t, 2)

	f.runAndWait(t, JobFeed)

	assert.Equal(t, []bool{false}, f.labeler.pending)
	assert.Equal(t, 1.0, f.runs(JobFeed, statusSuccess))
	assert.Equal(t, 1.0, f.runs(JobLabel, statusSuccess))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.JobItemsTotal.WithLabelValues(JobFeed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.JobItemsTotal.WithLabelValues(JobLabel)))
}

func TestFeedJob_FailureSkipsLabeling(t *testing.T) {
	f := newFixture(t, 1)
	f.sources.err = errors.New("db down")

	f.runAndWait(t, JobFeed)

	assert.Empty(t, f.labeler.pending)
	assert.Equal(t, 1.0, f.runs(JobFeed, statusFailure))
}

/* ───────── リトライ ───────── */

func TestLabelRetry_ProbesFirst(t *testing.T) {
	f := newFixture(t, 0)

	f.runAndWait(t, JobLabelRetry)
	assert.Equal(t, 0, f.labeler.errors)
	assert.Equal(t, 1.0, f.runs(JobLabelRetry, statusSkipped))

	f.labeler.hasError = true
	f.runAndWait(t, JobLabelRetry)
	assert.Equal(t, 1, f.labeler.errors)
	assert.Equal(t, 1.0, f.runs(JobLabelRetry, statusSuccess))
}

func TestSummaryJobs_ProbeTheirOwnStatus(t *testing.T) {
	f := newFixture(t, 0)
	f.summary.work[entity.SummaryError] = true

	f.runAndWait(t, JobSummary)
	f.runAndWait(t, JobSummaryRetry)

	assert.Equal(t, 0, f.summary.pending)
	assert.Equal(t, 1, f.summary.errors)
	assert.Equal(t, 1.0, f.runs(JobSummary, statusSkipped))
	assert.Equal(t, 1.0, f.runs(JobSummaryRetry, statusSuccess))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.JobItemsTotal.WithLabelValues(JobSummaryRetry)))
}

func TestSummaryJob_ProbeFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.summary.workErr = errors.New("db down")

	f.runAndWait(t, JobSummary)

	assert.Equal(t, 0, f.summary.pending)
	assert.Equal(t, 1.0, f.runs(JobSummary, statusFailure))
}

func TestSummaryJob_RunError(t *testing.T) {
	f := newFixture(t, 0)
	f.summary.work[entity.SummaryPending] = true
	f.summary.runErr = context.DeadlineExceeded

	f.runAndWait(t, JobSummary)

	assert.Equal(t, 1, f.summary.pending)
	assert.Equal(t, 1.0, f.runs(JobSummary, statusFailure))
}

/* ───────── ライフサイクル ───────── */

func TestRun_PanicIsRecovered(t *testing.T) {
	f := newFixture(t, 0)
	f.labeler.hasError = true
	f.labeler.panics = true

	assert.NotPanics(t, func() { f.runAndWait(t, JobLabelRetry) })
	assert.Equal(t, 1.0, f.runs(JobLabelRetry, statusFailure))
}

func TestRunNow_UnknownJob(t *testing.T) {
	f := newFixture(t, 0)
	assert.Error(t, f.sched.RunNow("reindex"))
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.sched.Start())
	assert.Len(t, f.sched.cron.Entries(), 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))

	// jobs no longer run after Stop
	f.labeler.hasError = true
	f.runAndWait(t, JobLabelRetry)
	assert.Equal(t, 0, f.labeler.errors)
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	f := newFixture(t, 2)
	f.sched.cfg.SourceFetchGap = time.Hour

	require.NoError(t, f.sched.RunNow(JobFeed))
	require.Eventually(t, func() bool { return len(f.ingestor.ids()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))

	assert.Len(t, f.ingestor.ids(), 1)
	assert.Equal(t, 1.0, f.runs(JobFeed, statusFailure))
	assert.Empty(t, f.labeler.pending)
}
