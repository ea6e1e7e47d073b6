package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/infra/feedcache"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/repository"
	"ai-feed-reader/internal/usecase/ingest"

	"github.com/google/uuid"
)

// Ingestor loads feeds through the cache and stores their entries.
type Ingestor interface {
	LoadFeed(ctx context.Context, url string) (*entity.Feed, bool, error)
	IngestSource(ctx context.Context, src *entity.Source, supplied *entity.Feed) (*ingest.Result, error)
}

// IconFinder resolves a site icon for a feed URL. An empty result means none.
type IconFinder interface {
	Find(ctx context.Context, feedURL string) string
}

// Cache is the feed cache as seen by the management operations.
type Cache interface {
	Put(url string, feed entity.Feed)
	Stats() feedcache.Stats
	Clear()
}

// Service provides source management use cases.
type Service struct {
	SourceRepo  repository.SourceRepository
	ArticleRepo repository.ArticleRepository
	Ingestor    Ingestor
	Icons       IconFinder
	Cache       Cache
}

// CreateInput represents the input parameters for subscribing to a feed.
// Empty Title falls back to the feed's own title.
type CreateInput struct {
	UserID   uuid.UUID
	URL      string
	Title    string
	Category string
}

// Validation is the outcome of ValidateFeed. Invalid feeds are reported in
// Error, not as a Go error.
type Validation struct {
	Valid       bool
	Title       string
	Description string
	Icon        string
	Error       string
}

// CreateResult carries the new source and the outcome of its first ingest.
type CreateResult struct {
	Source    *entity.Source
	Ingest    *ingest.Result
	IngestErr error
}

// ValidateFeed fetches and parses url, resolving the site icon. The parsed
// feed stays in the cache so a following CreateSource does not refetch it.
func (s *Service) ValidateFeed(ctx context.Context, url string) (*Validation, error) {
	v, _, err := s.validate(ctx, url)
	return v, err
}

func (s *Service) validate(ctx context.Context, url string) (*Validation, *entity.Feed, error) {
	url = strings.TrimSpace(url)
	if err := entity.ValidateURL(url); err != nil {
		return &Validation{Error: err.Error()}, nil, nil
	}

	feed, fromCache, err := s.Ingestor.LoadFeed(ctx, url)
	if err != nil {
		if errors.Is(err, ingest.ErrFeedFetchFailed) || errors.Is(err, ingest.ErrInvalidFeedFormat) {
			return &Validation{Error: err.Error()}, nil, nil
		}
		return nil, nil, fmt.Errorf("load feed: %w", err)
	}

	if feed.FaviconURL == "" && s.Icons != nil {
		if icon := s.Icons.Find(ctx, url); icon != "" {
			feed.FaviconURL = icon
			// アイコン付きで再キャッシュ
			if s.Cache != nil {
				key := feed.FetchedURL
				if key == "" {
					key = url
				}
				s.Cache.Put(key, *feed)
			}
		}
	}

	logging.FromContext(ctx).Debug("feed validated",
		slog.String("url", url),
		slog.Bool("from_cache", fromCache),
		slog.Int("entries", len(feed.Entries)))

	v := &Validation{
		Valid:       true,
		Title:       feed.Info.Title,
		Description: feed.Info.Description,
		Icon:        feed.FaviconURL,
	}
	if v.Icon == "" {
		v.Icon = entity.DefaultIcon
	}
	return v, feed, nil
}

// CreateSource subscribes in.UserID to a feed and ingests it right away with
// the payload fetched during validation. A failed first ingest does not fail
// the subscription; it is reported in CreateResult.IngestErr.
func (s *Service) CreateSource(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.UserID == uuid.Nil {
		in.UserID = entity.DefaultUserID
	}
	in.URL = strings.TrimSpace(in.URL)
	if err := entity.ValidateURL(in.URL); err != nil {
		return nil, fmt.Errorf("validate feed URL: %w", err)
	}

	exists, err := s.SourceRepo.ExistsByURL(ctx, in.UserID, in.URL)
	if err != nil {
		return nil, fmt.Errorf("check duplicate source: %w", err)
	}
	if exists {
		return nil, ErrDuplicateSource
	}

	v, feed, err := s.validate(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeed, v.Error)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = v.Title
	}
	src := &entity.Source{
		ID:          uuid.New(),
		UserID:      in.UserID,
		URL:         in.URL,
		Title:       title,
		Description: v.Description,
		Icon:        v.Icon,
		Category:    strings.TrimSpace(in.Category),
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := s.SourceRepo.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	res := &CreateResult{Source: src}
	res.Ingest, res.IngestErr = s.Ingestor.IngestSource(ctx, src, feed)
	if res.IngestErr != nil {
		logging.FromContext(ctx).Warn("initial ingest failed, source kept",
			slog.String("source_id", src.ID.String()),
			slog.Any("error", res.IngestErr))
	}
	return res, nil
}

// List returns the user's sources, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*entity.Source, error) {
	sources, err := s.SourceRepo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// Delete removes a source owned by userID together with its articles and
// returns how many articles went with it.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	src, err := s.SourceRepo.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get source: %w", err)
	}
	if src == nil {
		return 0, ErrSourceNotFound
	}
	if !src.OwnedBy(userID) {
		return 0, entity.ErrUnauthorized
	}

	n, err := s.ArticleRepo.CountBySource(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	if err := s.SourceRepo.Delete(ctx, id); err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	logging.FromContext(ctx).Info("source deleted",
		slog.String("source_id", id.String()),
		slog.Int64("articles_deleted", n))
	return n, nil
}

// CacheStats reports the feed cache counters.
func (s *Service) CacheStats() feedcache.Stats {
	return s.Cache.Stats()
}

// ClearCache drops every cached feed.
func (s *Service) ClearCache() {
	s.Cache.Clear()
}
