package summary

import (
	"context"
	"log/slog"
	"sync"

	"ai-feed-reader/internal/observability/logging"

	"github.com/google/uuid"
)

// Queue hands sets of freshly labeled articles to a dedicated summarization
// worker. Each Enqueue is processed as one fan-out.
type Queue struct {
	svc  *Service
	ch   chan []uuid.UUID
	done chan struct{}
	once sync.Once
}

func NewQueue(svc *Service, capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		svc:  svc,
		ch:   make(chan []uuid.UUID, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks until the set is accepted, the queue is closed or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- append([]uuid.UUID(nil), ids...):
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Run drains what is already buffered.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Run consumes the queue until Close or ctx cancellation. After Close the
// buffered sets are still processed.
func (q *Queue) Run(ctx context.Context) {
	logger := logging.FromContext(ctx)
	logger.Info("summary worker started")
	defer logger.Info("summary worker stopped")

	for {
		select {
		case ids := <-q.ch:
			q.handle(ctx, ids)
		case <-q.done:
			q.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case ids := <-q.ch:
			q.handle(ctx, ids)
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) handle(ctx context.Context, ids []uuid.UUID) {
	res := q.svc.SummarizeBatch(ctx, ids)
	logging.FromContext(ctx).Info("queued summaries processed",
		slog.Int("articles", len(ids)),
		slog.Int("success", res.Success),
		slog.Int("ignored", res.Ignored),
		slog.Int("conflict", res.Conflict),
		slog.Int("failed", res.Failed))
}

// Len reports the number of buffered sets.
func (q *Queue) Len() int { return len(q.ch) }
