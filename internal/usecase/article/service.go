package article

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/repository"

	"github.com/google/uuid"
)

// Service provides article status use cases.
type Service struct {
	Repo       repository.ArticleRepository
	SourceRepo repository.SourceRepository
	Now        func() time.Time
}

func NewService(repo repository.ArticleRepository, sourceRepo repository.SourceRepository) *Service {
	return &Service{Repo: repo, SourceRepo: sourceRepo, Now: time.Now}
}

// owned loads the article and checks that userID owns its source.
func (s *Service) owned(ctx context.Context, userID, id uuid.UUID) (*repository.ArticleWithOwner, error) {
	a, err := s.Repo.GetWithSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	if a == nil {
		return nil, ErrArticleNotFound
	}
	if a.UserID != userID {
		return nil, entity.ErrUnauthorized
	}
	return a, nil
}

// recount refreshes the source's unread counter after a flag change.
func (s *Service) recount(ctx context.Context, sourceID uuid.UUID) error {
	if err := s.SourceRepo.RecountUnread(ctx, sourceID); err != nil {
		return fmt.Errorf("recount unread: %w", err)
	}
	return nil
}

// MarkRead sets the read flag.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID, read bool) error {
	a, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.SetRead(ctx, id, read); err != nil {
		return fmt.Errorf("set read: %w", err)
	}
	return s.recount(ctx, a.Article.SourceID)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	a, err := s.owned(ctx, userID, id)
	if err != nil {
		return false, err
	}
	next := !a.Article.IsFavorite
	if err := s.Repo.SetFavorite(ctx, id, next); err != nil {
		return false, fmt.Errorf("set favorite: %w", err)
	}
	return next, nil
}

// MoveToTrash trashes the article. Trashing twice keeps the first timestamp.
func (s *Service) MoveToTrash(ctx context.Context, userID, id uuid.UUID) error {
	a, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if a.Article.IsTrashed {
		return nil
	}
	if err := s.Repo.Trash(ctx, id, s.Now()); err != nil {
		return fmt.Errorf("trash article: %w", err)
	}
	return s.recount(ctx, a.Article.SourceID)
}

// RestoreFromTrash takes the article out of the trash.
func (s *Service) RestoreFromTrash(ctx context.Context, userID, id uuid.UUID) error {
	a, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if !a.Article.IsTrashed {
		return ErrNotInTrash
	}
	if err := s.Repo.Restore(ctx, id); err != nil {
		return fmt.Errorf("restore article: %w", err)
	}
	return s.recount(ctx, a.Article.SourceID)
}

// EmptyTrash permanently deletes the user's trashed articles.
func (s *Service) EmptyTrash(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.Repo.EmptyTrash(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("empty trash: %w", err)
	}
	logging.FromContext(ctx).Info("trash emptied",
		slog.String("user_id", userID.String()),
		slog.Int64("deleted", n))
	return n, nil
}

// Counts returns the unread, favorite and trashed counters for userID.
func (s *Service) Counts(ctx context.Context, userID uuid.UUID) (repository.ArticleCounts, error) {
	c, err := s.Repo.Counts(ctx, userID)
	if err != nil {
		return repository.ArticleCounts{}, fmt.Errorf("count articles: %w", err)
	}
	return c, nil
}
