package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ArticleRepo struct {
	db *sql.DB
}

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

const articleColumns = `a.id, a.source_id, a.guid, a.title, a.link, a.description, a.content,
a.cover_image, a.pub_date, a.created_at, a.is_read, a.is_favorite, a.is_trashed, a.trashed_at,
a.ai_labels, a.ai_label_status, a.ai_label_error,
a.ai_summary, a.ai_summary_status, a.ai_summary_error, a.ai_summary_generated_at`

// scanArticle scans articleColumns followed by any extra destinations.
func scanArticle(s rowScanner, extra ...any) (*entity.Article, error) {
	var (
		a                                    entity.Article
		cover, labelErr, summary, summaryErr sql.NullString
		labelsJSON                           []byte
		labelStatus, summaryStatus           string
	)
	dest := []any{
		&a.ID, &a.SourceID, &a.GUID, &a.Title, &a.Link, &a.Description, &a.Content,
		&cover, &a.PubDate, &a.CreatedAt, &a.IsRead, &a.IsFavorite, &a.IsTrashed, &a.TrashedAt,
		&labelsJSON, &labelStatus, &labelErr,
		&summary, &summaryStatus, &summaryErr, &a.AISummaryGeneratedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	a.CoverImage = cover.String
	a.AILabelStatus = entity.LabelStatus(labelStatus)
	a.AILabelError = labelErr.String
	a.AISummary = summary.String
	a.AISummaryStatus = entity.SummaryStatus(summaryStatus)
	a.AISummaryError = summaryErr.String
	if len(labelsJSON) > 0 {
		var labels entity.Labels
		if err := json.Unmarshal(labelsJSON, &labels); err != nil {
			return nil, fmt.Errorf("unmarshal ai_labels: %w", err)
		}
		a.AILabels = &labels
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (repo *ArticleRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Article, error) {
	const query = `
SELECT ` + articleColumns + `
FROM articles a
WHERE a.id = $1
LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetWithSource(ctx context.Context, id uuid.UUID) (*repository.ArticleWithOwner, error) {
	const query = `
SELECT ` + articleColumns + `, s.title, s.user_id
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE a.id = $1
LIMIT 1`
	var out repository.ArticleWithOwner
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id), &out.SourceTitle, &out.UserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetWithSource: %w", err)
	}
	out.Article = article
	return &out, nil
}

// ExistsByGUIDBatch はバッチでGUID存在チェックを行い、N+1問題を解消する
func (repo *ArticleRepo) ExistsByGUIDBatch(ctx context.Context, guids []string) (map[string]bool, error) {
	if len(guids) == 0 {
		return make(map[string]bool), nil
	}

	const query = `SELECT guid FROM articles WHERE guid = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(guids))
	if err != nil {
		return nil, fmt.Errorf("ExistsByGUIDBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool, len(guids))
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("ExistsByGUIDBatch: Scan: %w", err)
		}
		result[guid] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExistsByGUIDBatch: rows.Err: %w", err)
	}
	return result, nil
}

func (repo *ArticleRepo) CountBySource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	const query = `SELECT COUNT(*) FROM articles WHERE source_id = $1`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountBySource: %w", err)
	}
	return n, nil
}

func (repo *ArticleRepo) InsertFetched(ctx context.Context, sourceID uuid.UUID, articles []*entity.Article, fetchedAt time.Time) (int, error) {
	const insert = `
INSERT INTO articles (id, source_id, guid, title, link, description, content, cover_image, pub_date, created_at,
                      ai_label_status, ai_summary_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (guid) DO NOTHING`
	const touch = `UPDATE sources SET last_fetched = $2 WHERE id = $1`

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("InsertFetched: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, a := range articles {
		res, err := tx.ExecContext(ctx, insert,
			a.ID, sourceID, a.GUID, a.Title, a.Link, a.Description, a.Content,
			nullString(a.CoverImage), a.PubDate, a.CreatedAt,
			string(a.AILabelStatus), string(a.AISummaryStatus),
		)
		if err != nil {
			return 0, fmt.Errorf("InsertFetched: insert %s: %w", a.GUID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("InsertFetched: RowsAffected: %w", err)
		}
		if n > 0 {
			inserted++
		}
	}

	if _, err := tx.ExecContext(ctx, touch, sourceID, fetchedAt); err != nil {
		return 0, fmt.Errorf("InsertFetched: touch source: %w", err)
	}
	if _, err := tx.ExecContext(ctx, recountUnreadQuery, sourceID); err != nil {
		return 0, fmt.Errorf("InsertFetched: recount unread: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("InsertFetched: Commit: %w", err)
	}
	return inserted, nil
}

/* ───── label status ───── */

func (repo *ArticleRepo) ListByLabelStatus(ctx context.Context, status entity.LabelStatus, limit int) ([]entity.ArticleWithSource, error) {
	const query = `
SELECT ` + articleColumns + `, s.title
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE a.ai_label_status = $1 AND a.is_trashed = FALSE
ORDER BY a.created_at ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("ListByLabelStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]entity.ArticleWithSource, 0, limit)
	for rows.Next() {
		var title string
		article, err := scanArticle(rows, &title)
		if err != nil {
			return nil, fmt.Errorf("ListByLabelStatus: Scan: %w", err)
		}
		result = append(result, entity.ArticleWithSource{Article: article, SourceTitle: title})
	}
	return result, rows.Err()
}

func (repo *ArticleRepo) CountByLabelStatus(ctx context.Context, status entity.LabelStatus) (int64, error) {
	const query = `SELECT COUNT(*) FROM articles WHERE ai_label_status = $1 AND is_trashed = FALSE`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByLabelStatus: %w", err)
	}
	return n, nil
}

func (repo *ArticleRepo) ClaimLabel(ctx context.Context, id uuid.UUID, from entity.LabelStatus) (bool, error) {
	const query = `
UPDATE articles SET ai_label_status = 'processing'
WHERE id = $1 AND ai_label_status = $2`
	return repo.cas(ctx, "ClaimLabel", query, id, string(from))
}

func (repo *ArticleRepo) CompleteLabel(ctx context.Context, id uuid.UUID, labels entity.Labels, trash bool, now time.Time) (bool, error) {
	const query = `
UPDATE articles SET
    ai_labels = $2,
    ai_label_status = 'done',
    ai_label_error = NULL,
    is_trashed = is_trashed OR $3::boolean,
    trashed_at = CASE WHEN $3::boolean AND NOT is_trashed THEN $4 ELSE trashed_at END,
    ai_summary_status = CASE WHEN $3::boolean AND ai_summary_status IN ('pending', 'error')
        THEN 'ignored' ELSE ai_summary_status END,
    ai_summary_error = CASE WHEN $3::boolean AND ai_summary_status IN ('pending', 'error')
        THEN $5 ELSE ai_summary_error END
WHERE id = $1 AND ai_label_status = 'processing'`
	b, err := json.Marshal(labels)
	if err != nil {
		return false, fmt.Errorf("CompleteLabel: marshal: %w", err)
	}
	return repo.cas(ctx, "CompleteLabel", query, id, string(b), trash, now, entity.IgnoredSummaryReason)
}

func (repo *ArticleRepo) FailLabel(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	const query = `
UPDATE articles SET ai_label_status = 'error', ai_label_error = $2
WHERE id = $1 AND ai_label_status = 'processing'`
	return repo.cas(ctx, "FailLabel", query, id, reason)
}

func (repo *ArticleRepo) ReleaseLabel(ctx context.Context, id uuid.UUID, to entity.LabelStatus) (bool, error) {
	const query = `
UPDATE articles SET ai_label_status = $2
WHERE id = $1 AND ai_label_status = 'processing'`
	return repo.cas(ctx, "ReleaseLabel", query, id, string(to))
}

/* ───── summary status ───── */

func statusStrings(statuses []entity.SummaryStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (repo *ArticleRepo) ListSummaryCandidates(ctx context.Context, statuses []entity.SummaryStatus, limit int) ([]uuid.UUID, error) {
	const query = `
SELECT id FROM articles
WHERE ai_label_status = 'done' AND is_trashed = FALSE AND ai_summary_status = ANY($1)
ORDER BY created_at ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(statusStrings(statuses)), limit)
	if err != nil {
		return nil, fmt.Errorf("ListSummaryCandidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListSummaryCandidates: Scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *ArticleRepo) CountSummaryCandidates(ctx context.Context, statuses []entity.SummaryStatus) (int64, error) {
	const query = `
SELECT COUNT(*) FROM articles
WHERE ai_label_status = 'done' AND is_trashed = FALSE AND ai_summary_status = ANY($1)`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, pq.Array(statusStrings(statuses))).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountSummaryCandidates: %w", err)
	}
	return n, nil
}

func (repo *ArticleRepo) ClaimSummary(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
UPDATE articles SET ai_summary_status = 'processing', ai_summary_error = NULL
WHERE id = $1 AND ai_summary_status IN ('pending', 'error') AND ai_label_status = 'done'`
	return repo.cas(ctx, "ClaimSummary", query, id)
}

func (repo *ArticleRepo) IgnoreSummary(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	const query = `
UPDATE articles SET ai_summary_status = 'ignored', ai_summary_error = $2
WHERE id = $1 AND ai_summary_status IN ('pending', 'error') AND ai_label_status = 'done'`
	return repo.cas(ctx, "IgnoreSummary", query, id, reason)
}

func (repo *ArticleRepo) CompleteSummary(ctx context.Context, id uuid.UUID, summary string, now time.Time) (bool, error) {
	const query = `
UPDATE articles SET
    ai_summary = $2,
    ai_summary_status = 'success',
    ai_summary_error = NULL,
    ai_summary_generated_at = $3
WHERE id = $1 AND ai_summary_status = 'processing'`
	return repo.cas(ctx, "CompleteSummary", query, id, summary, now)
}

func (repo *ArticleRepo) FailSummary(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	const query = `
UPDATE articles SET ai_summary_status = 'error', ai_summary_error = $2
WHERE id = $1 AND ai_summary_status = 'processing'`
	return repo.cas(ctx, "FailSummary", query, id, reason)
}

// cas runs a guarded UPDATE and reports whether exactly one row moved.
func (repo *ArticleRepo) cas(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: RowsAffected: %w", op, err)
	}
	return n == 1, nil
}

/* ───── user-facing flags ───── */

func (repo *ArticleRepo) SetRead(ctx context.Context, id uuid.UUID, read bool) error {
	const query = `UPDATE articles SET is_read = $2 WHERE id = $1`
	return repo.update(ctx, "SetRead", query, id, read)
}

func (repo *ArticleRepo) SetFavorite(ctx context.Context, id uuid.UUID, favorite bool) error {
	const query = `UPDATE articles SET is_favorite = $2 WHERE id = $1`
	return repo.update(ctx, "SetFavorite", query, id, favorite)
}

func (repo *ArticleRepo) Trash(ctx context.Context, id uuid.UUID, now time.Time) error {
	const query = `UPDATE articles SET is_trashed = TRUE, trashed_at = $2 WHERE id = $1`
	return repo.update(ctx, "Trash", query, id, now)
}

func (repo *ArticleRepo) Restore(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE articles SET is_trashed = FALSE, trashed_at = NULL WHERE id = $1`
	return repo.update(ctx, "Restore", query, id)
}

func (repo *ArticleRepo) update(ctx context.Context, op, query string, args ...any) error {
	ok, err := repo.cas(ctx, op, query, args...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrNotFound)
	}
	return nil
}

func (repo *ArticleRepo) EmptyTrash(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `
DELETE FROM articles a
USING sources s
WHERE a.source_id = s.id AND s.user_id = $1 AND a.is_trashed = TRUE`
	res, err := repo.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("EmptyTrash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("EmptyTrash: RowsAffected: %w", err)
	}
	return n, nil
}

func (repo *ArticleRepo) Counts(ctx context.Context, userID uuid.UUID) (repository.ArticleCounts, error) {
	const query = `
SELECT
    COUNT(*) FILTER (WHERE NOT a.is_read AND NOT a.is_trashed),
    COUNT(*) FILTER (WHERE a.is_favorite AND NOT a.is_trashed),
    COUNT(*) FILTER (WHERE a.is_trashed)
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE s.user_id = $1`
	var c repository.ArticleCounts
	if err := repo.db.QueryRowContext(ctx, query, userID).Scan(&c.Unread, &c.Favorite, &c.Trashed); err != nil {
		return repository.ArticleCounts{}, fmt.Errorf("Counts: %w", err)
	}
	return c, nil
}
