package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/repository"

	"github.com/google/uuid"
)

type SourceRepo struct{ db *sql.DB }

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, user_id, url, title, description, icon, category, unread_count, created_at, last_fetched`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(s rowScanner) (*entity.Source, error) {
	var src entity.Source
	if err := s.Scan(
		&src.ID, &src.UserID, &src.URL, &src.Title, &src.Description,
		&src.Icon, &src.Category, &src.UnreadCount, &src.CreatedAt, &src.LastFetched,
	); err != nil {
		return nil, err
	}
	return &src, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE id = $1
LIMIT 1`
	src, err := scanSource(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) List(ctx context.Context, userID uuid.UUID) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE user_id = $1
ORDER BY created_at DESC`
	return repo.query(ctx, "List", query, userID)
}

func (repo *SourceRepo) ListForFetch(ctx context.Context) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
ORDER BY last_fetched ASC NULLS FIRST, created_at ASC`
	return repo.query(ctx, "ListForFetch", query)
}

func (repo *SourceRepo) query(ctx context.Context, op, query string, args ...any) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) ExistsByURL(ctx context.Context, userID uuid.UUID, url string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM sources WHERE user_id = $1 AND url = $2)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, userID, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return exists, nil
}

func (repo *SourceRepo) Create(ctx context.Context, src *entity.Source) error {
	const query = `
INSERT INTO sources (id, user_id, url, title, description, icon, category, unread_count, created_at, last_fetched)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	_, err := repo.db.ExecContext(ctx, query,
		src.ID, src.UserID, src.URL, src.Title, src.Description,
		src.Icon, src.Category, src.UnreadCount, src.CreatedAt, src.LastFetched,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *SourceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM sources WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Delete: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *SourceRepo) RecountUnread(ctx context.Context, id uuid.UUID) error {
	_, err := repo.db.ExecContext(ctx, recountUnreadQuery, id)
	if err != nil {
		return fmt.Errorf("RecountUnread: %w", err)
	}
	return nil
}

const recountUnreadQuery = `
UPDATE sources SET unread_count = (
    SELECT COUNT(*) FROM articles
    WHERE source_id = $1 AND is_read = FALSE AND is_trashed = FALSE
)
WHERE id = $1`
