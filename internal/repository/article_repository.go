package repository

import (
	"context"
	"time"

	"ai-feed-reader/internal/domain/entity"

	"github.com/google/uuid"
)

// ArticleCounts holds the per-user article counters. Trashed articles are
// excluded from Unread and Favorite.
type ArticleCounts struct {
	Unread   int64
	Favorite int64
	Trashed  int64
}

// ArticleWithOwner is an article joined with the source fields that the
// enrichment and authorization paths need.
type ArticleWithOwner struct {
	entity.ArticleWithSource
	UserID uuid.UUID
}

type ArticleRepository interface {
	// Get returns (nil, nil) if the article does not exist.
	Get(ctx context.Context, id uuid.UUID) (*entity.Article, error)
	// GetWithSource returns (nil, nil) if the article does not exist.
	GetWithSource(ctx context.Context, id uuid.UUID) (*ArticleWithOwner, error)
	// ExistsByGUIDBatch はバッチでGUID存在チェックを行う
	ExistsByGUIDBatch(ctx context.Context, guids []string) (map[string]bool, error)
	// CountBySource returns the number of articles stored for a source, trashed included.
	CountBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
	// InsertFetched inserts new articles for a source and, in the same transaction,
	// stamps the source's last_fetched and recomputes its unread_count.
	// Articles whose GUID already exists are skipped. Returns the inserted count.
	InsertFetched(ctx context.Context, sourceID uuid.UUID, articles []*entity.Article, fetchedAt time.Time) (int, error)

	LabelStore
	SummaryStore
	StatusStore
}

// LabelStore holds the label status CAS updates. Every mutator returns false
// without error when the row was not in the expected status.
type LabelStore interface {
	// ListByLabelStatus returns articles in status, oldest first.
	ListByLabelStatus(ctx context.Context, status entity.LabelStatus, limit int) ([]entity.ArticleWithSource, error)
	CountByLabelStatus(ctx context.Context, status entity.LabelStatus) (int64, error)
	// ClaimLabel moves from -> processing.
	ClaimLabel(ctx context.Context, id uuid.UUID, from entity.LabelStatus) (bool, error)
	// CompleteLabel moves processing -> done and stores labels. When trash is set
	// the article is moved to the trash in the same update and a pending or
	// failed summary becomes ignored.
	CompleteLabel(ctx context.Context, id uuid.UUID, labels entity.Labels, trash bool, now time.Time) (bool, error)
	// FailLabel moves processing -> error and records the reason.
	FailLabel(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// ReleaseLabel moves processing back to the status the row was claimed from.
	ReleaseLabel(ctx context.Context, id uuid.UUID, to entity.LabelStatus) (bool, error)
}

// SummaryStore holds the summary status CAS updates. Every mutator returns
// false without error when the row was not in the expected status.
type SummaryStore interface {
	// ListSummaryCandidates returns ids of untrashed, labeled articles whose
	// summary status is one of statuses, oldest first.
	ListSummaryCandidates(ctx context.Context, statuses []entity.SummaryStatus, limit int) ([]uuid.UUID, error)
	CountSummaryCandidates(ctx context.Context, statuses []entity.SummaryStatus) (int64, error)
	// ClaimSummary moves pending|error -> processing. Only labeled articles qualify.
	ClaimSummary(ctx context.Context, id uuid.UUID) (bool, error)
	// IgnoreSummary moves pending|error -> ignored and records the reason. Only
	// labeled articles qualify.
	IgnoreSummary(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// CompleteSummary moves processing -> success and stamps the generation time.
	CompleteSummary(ctx context.Context, id uuid.UUID, summary string, now time.Time) (bool, error)
	// FailSummary moves processing -> error and records the reason.
	FailSummary(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// StatusStore holds the user-facing read, favorite and trash flags.
type StatusStore interface {
	SetRead(ctx context.Context, id uuid.UUID, read bool) error
	SetFavorite(ctx context.Context, id uuid.UUID, favorite bool) error
	Trash(ctx context.Context, id uuid.UUID, now time.Time) error
	Restore(ctx context.Context, id uuid.UUID) error
	// EmptyTrash hard-deletes the user's trashed articles and returns how many were removed.
	EmptyTrash(ctx context.Context, userID uuid.UUID) (int64, error)
	Counts(ctx context.Context, userID uuid.UUID) (ArticleCounts, error)
}
