package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/infra/scraper"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/observability/metrics"
	"ai-feed-reader/internal/observability/tracing"
	"ai-feed-reader/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const contentFetchParallelism = 5

// FeedFetcher downloads and parses one feed URL. Parse failures must be
// distinguishable with scraper.IsParseFailure.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*entity.Feed, error)
}

// FeedCache memoizes parsed feeds by URL.
type FeedCache interface {
	Get(url string) (*entity.Feed, bool)
	Put(url string, feed entity.Feed)
}

// ContentFetcher supplies full article text for thin feed entries.
type ContentFetcher interface {
	NeedsEnhancement(content string) bool
	FetchContent(ctx context.Context, url string) (string, error)
}

// Service ingests feeds into the article store.
type Service struct {
	SourceRepo     repository.SourceRepository
	ArticleRepo    repository.ArticleRepository
	Fetcher        FeedFetcher
	Cache          FeedCache
	ContentFetcher ContentFetcher // nil disables content enhancement
	Now            func() time.Time
}

func NewService(
	sourceRepo repository.SourceRepository,
	articleRepo repository.ArticleRepository,
	fetcher FeedFetcher,
	cache FeedCache,
	contentFetcher ContentFetcher,
) *Service {
	return &Service{
		SourceRepo:     sourceRepo,
		ArticleRepo:    articleRepo,
		Fetcher:        fetcher,
		Cache:          cache,
		ContentFetcher: contentFetcher,
		Now:            time.Now,
	}
}

// Result summarizes one source ingest.
type Result struct {
	SourceID   uuid.UUID
	FetchedURL string
	FromCache  bool
	Found      int
	Inserted   int
	Duplicated int
	Duration   time.Duration
}

// LoadFeed returns the parsed feed for feedURL, from the cache when a recent
// copy exists, otherwise from the network. Network results are cached under
// the URL variant that succeeded.
func (s *Service) LoadFeed(ctx context.Context, feedURL string) (*entity.Feed, bool, error) {
	if feed, ok := s.cached(feedURL); ok {
		return feed, true, nil
	}
	feed, err := s.fetchWithFallback(ctx, feedURL)
	if err != nil {
		return nil, false, err
	}
	return feed, false, nil
}

func (s *Service) cached(feedURL string) (*entity.Feed, bool) {
	if s.Cache == nil {
		return nil, false
	}
	for _, key := range []string{feedURL, WithLimitHint(feedURL)} {
		if feed, ok := s.Cache.Get(key); ok {
			metrics.RecordFeedCache(true)
			return feed, true
		}
	}
	metrics.RecordFeedCache(false)
	return nil, false
}

// fetchWithFallback tries the hinted URL first and the bare URL second. When
// both fail the bare URL's error is returned.
func (s *Service) fetchWithFallback(ctx context.Context, feedURL string) (*entity.Feed, error) {
	logger := logging.FromContext(ctx)

	hinted := WithLimitHint(feedURL)
	if hinted != feedURL {
		feed, err := s.Fetcher.Fetch(ctx, hinted)
		if err == nil {
			s.store(hinted, feed)
			return feed, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrFeedFetchFailed, ctx.Err())
		}
		logger.Info("hinted feed fetch failed, retrying with bare URL",
			slog.String("url", hinted),
			slog.Any("error", err))
	}

	feed, err := s.Fetcher.Fetch(ctx, feedURL)
	if err != nil {
		if scraper.IsParseFailure(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFeedFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFeedFetchFailed, err)
	}
	if hinted != feedURL {
		metrics.RecordFeedFetchFallback()
	}
	s.store(feedURL, feed)
	return feed, nil
}

func (s *Service) store(key string, feed *entity.Feed) {
	if s.Cache != nil {
		s.Cache.Put(key, *feed)
	}
}

// IngestByID ingests one source now.
func (s *Service) IngestByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	src, err := s.SourceRepo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("source %s: %w", id, entity.ErrNotFound)
	}
	return s.IngestSource(ctx, src, nil)
}

// IngestSource stores the entries of src's feed that have not been seen
// before. supplied, when non-nil, is used instead of fetching. Whatever the
// number of new entries, last_fetched and unread_count are refreshed in the
// same transaction as the inserts.
func (s *Service) IngestSource(ctx context.Context, src *entity.Source, supplied *entity.Feed) (res *Result, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "ingest.source",
		attribute.String("source.id", src.ID.String()),
		attribute.String("source.url", src.URL))
	defer func() { tracing.End(span, err) }()

	logger := logging.FromContext(ctx).With(
		slog.String("source_id", src.ID.String()),
		slog.String("feed_url", src.URL))

	res = &Result{SourceID: src.ID}

	feed := supplied
	if feed == nil {
		feed, res.FromCache, err = s.LoadFeed(ctx, src.URL)
		if err != nil {
			errType := "fetch_failed"
			if errors.Is(err, ErrInvalidFeedFormat) {
				errType = "parse_failed"
			}
			metrics.RecordFeedIngestError(errType)
			logger.Warn("failed to fetch feed", slog.Any("error", err))
			return nil, err
		}
	}
	res.FetchedURL = feed.FetchedURL
	res.Found = len(feed.Entries)

	fresh, err := s.newArticles(ctx, src.ID, feed.Entries)
	if err != nil {
		metrics.RecordFeedIngestError("store_failed")
		return nil, err
	}
	res.Duplicated = res.Found - len(fresh)

	s.enhanceContent(ctx, fresh)

	inserted, err := s.ArticleRepo.InsertFetched(ctx, src.ID, fresh, s.Now())
	if err != nil {
		metrics.RecordFeedIngestError("store_failed")
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	// Rows lost to a concurrent insert of the same guid count as duplicates.
	res.Duplicated += len(fresh) - inserted
	res.Inserted = inserted
	res.Duration = time.Since(start)

	metrics.RecordFeedIngest(res.Duration, res.Inserted, res.Duplicated)
	logger.Info("source ingest completed",
		slog.Int("feed_items", res.Found),
		slog.Int("inserted", res.Inserted),
		slog.Int("duplicated", res.Duplicated),
		slog.Bool("from_cache", res.FromCache),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// newArticles drops entries whose guid is already stored or repeated within the feed.
func (s *Service) newArticles(ctx context.Context, sourceID uuid.UUID, entries []entity.FeedEntry) ([]*entity.Article, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	// N+1問題解消: 事前に全GUIDをバッチで存在チェック
	guids := make([]string, 0, len(entries))
	for _, e := range entries {
		guids = append(guids, e.GUID)
	}
	exists, err := s.ArticleRepo.ExistsByGUIDBatch(ctx, guids)
	if err != nil {
		return nil, fmt.Errorf("batch check guids: %w", err)
	}

	now := s.Now()
	seen := make(map[string]struct{}, len(entries))
	fresh := make([]*entity.Article, 0, len(entries))
	for _, e := range entries {
		if exists[e.GUID] {
			continue
		}
		if _, dup := seen[e.GUID]; dup {
			continue
		}
		seen[e.GUID] = struct{}{}
		fresh = append(fresh, entity.NewArticle(sourceID, e, now))
	}
	return fresh, nil
}

// enhanceContent replaces thin bodies with the readable text of the linked
// page. Failures keep the feed content.
func (s *Service) enhanceContent(ctx context.Context, articles []*entity.Article) {
	if s.ContentFetcher == nil {
		return
	}
	logger := logging.FromContext(ctx)

	var eg errgroup.Group
	eg.SetLimit(contentFetchParallelism)
	for _, a := range articles {
		body := a.BodyText()
		if a.Link == "" || !s.ContentFetcher.NeedsEnhancement(body) {
			metrics.RecordContentFetchSkipped()
			continue
		}
		eg.Go(func() error {
			start := time.Now()
			full, err := s.ContentFetcher.FetchContent(ctx, a.Link)
			if err != nil {
				metrics.RecordContentFetchFailed(time.Since(start))
				logger.Warn("content fetch failed, using feed content",
					slog.String("url", a.Link),
					slog.Any("error", err))
				return nil
			}
			metrics.RecordContentFetchSuccess(time.Since(start))
			if utf8.RuneCountInString(full) > utf8.RuneCountInString(body) {
				a.Content = full
			}
			return nil
		})
	}
	_ = eg.Wait()
}
