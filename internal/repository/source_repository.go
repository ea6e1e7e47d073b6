package repository

import (
	"context"

	"ai-feed-reader/internal/domain/entity"

	"github.com/google/uuid"
)

type SourceRepository interface {
	// Get returns (nil, nil) if the source does not exist.
	Get(ctx context.Context, id uuid.UUID) (*entity.Source, error)
	// List returns the sources owned by userID, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]*entity.Source, error)
	// ListForFetch returns every source ordered by last_fetched ascending,
	// never-fetched sources first.
	ListForFetch(ctx context.Context) ([]*entity.Source, error)
	ExistsByURL(ctx context.Context, userID uuid.UUID, url string) (bool, error)
	Create(ctx context.Context, source *entity.Source) error
	// Delete removes the source and, by cascade, all of its articles.
	Delete(ctx context.Context, id uuid.UUID) error
	// RecountUnread recomputes unread_count from the source's articles.
	RecountUnread(ctx context.Context, id uuid.UUID) error
}
