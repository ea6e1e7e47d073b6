// Package repotest provides an in-memory implementation of the repository
// interfaces for use-case tests. Status updates follow the same compare-and-swap
// rules as the PostgreSQL repositories.
package repotest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/repository"

	"github.com/google/uuid"
)

// Store holds sources and articles guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	sources  map[uuid.UUID]*entity.Source
	articles map[uuid.UUID]*entity.Article
	failures map[string]error

	// BeforeCAS, when set, runs before every status update with the operation
	// name, outside the lock. Tests use it to simulate a concurrent writer.
	BeforeCAS func(op string, id uuid.UUID)

	InsertCalls int
}

func NewStore() *Store {
	return &Store{
		sources:  make(map[uuid.UUID]*entity.Source),
		articles: make(map[uuid.UUID]*entity.Article),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AddSource stores a copy of src, assigning an id when missing.
func (s *Store) AddSource(src entity.Source) *entity.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	s.sources[src.ID] = &src
	cp := src
	return &cp
}

// AddArticle stores a copy of a, assigning an id when missing.
func (s *Store) AddArticle(a entity.Article) *entity.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.articles[a.ID] = &a
	cp := a
	return &cp
}

// Article returns a snapshot of the stored article, or nil.
func (s *Store) Article(id uuid.UUID) *entity.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Source returns a snapshot of the stored source, or nil.
func (s *Store) Source(id uuid.UUID) *entity.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil
	}
	cp := *src
	return &cp
}

// Update applies fn to the stored article under the lock.
func (s *Store) Update(id uuid.UUID, fn func(a *entity.Article)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.articles[id]; ok {
		fn(a)
	}
}

// ArticlesOf returns snapshots of a source's articles, oldest first.
func (s *Store) ArticlesOf(sourceID uuid.UUID) []*entity.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Article
	for _, a := range s.sortedArticles() {
		if a.SourceID == sourceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) sortedArticles() []*entity.Article {
	all := make([]*entity.Article, 0, len(s.articles))
	for _, a := range s.articles {
		all = append(all, a)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].GUID < all[j].GUID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

func (s *Store) recount(sourceID uuid.UUID) {
	src, ok := s.sources[sourceID]
	if !ok {
		return
	}
	n := 0
	for _, a := range s.articles {
		if a.SourceID == sourceID && !a.IsRead && !a.IsTrashed {
			n++
		}
	}
	src.UnreadCount = n
}

func (s *Store) SourceRepo() repository.SourceRepository { return &sourceRepo{s: s} }

func (s *Store) ArticleRepo() repository.ArticleRepository { return &articleRepo{s: s} }

/* ───── sources ───── */

type sourceRepo struct{ s *Store }

func (r *sourceRepo) Get(_ context.Context, id uuid.UUID) (*entity.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Source.Get"); err != nil {
		return nil, err
	}
	src, ok := r.s.sources[id]
	if !ok {
		return nil, nil
	}
	cp := *src
	return &cp, nil
}

func (r *sourceRepo) List(_ context.Context, userID uuid.UUID) ([]*entity.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Source
	for _, src := range r.s.sources {
		if src.UserID == userID {
			cp := *src
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *sourceRepo) ListForFetch(_ context.Context) ([]*entity.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("ListForFetch"); err != nil {
		return nil, err
	}
	out := make([]*entity.Source, 0, len(r.s.sources))
	for _, src := range r.s.sources {
		cp := *src
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastFetched, out[j].LastFetched
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (r *sourceRepo) ExistsByURL(_ context.Context, userID uuid.UUID, url string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, src := range r.s.sources {
		if src.UserID == userID && src.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (r *sourceRepo) Create(_ context.Context, src *entity.Source) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Source.Create"); err != nil {
		return err
	}
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	cp := *src
	r.s.sources[src.ID] = &cp
	return nil
}

func (r *sourceRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sources[id]; !ok {
		return fmt.Errorf("Delete: %w", entity.ErrNotFound)
	}
	delete(r.s.sources, id)
	for aid, a := range r.s.articles {
		if a.SourceID == id {
			delete(r.s.articles, aid)
		}
	}
	return nil
}

func (r *sourceRepo) RecountUnread(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.recount(id)
	return nil
}

/* ───── articles ───── */

type articleRepo struct{ s *Store }

func (r *articleRepo) Get(_ context.Context, id uuid.UUID) (*entity.Article, error) {
	return r.s.Article(id), nil
}

func (r *articleRepo) GetWithSource(_ context.Context, id uuid.UUID) (*repository.ArticleWithOwner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("GetWithSource"); err != nil {
		return nil, err
	}
	a, ok := r.s.articles[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	out := &repository.ArticleWithOwner{ArticleWithSource: entity.ArticleWithSource{Article: &cp}}
	if src, ok := r.s.sources[a.SourceID]; ok {
		out.SourceTitle = src.Title
		out.UserID = src.UserID
	}
	return out, nil
}

func (r *articleRepo) ExistsByGUIDBatch(_ context.Context, guids []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("ExistsByGUIDBatch"); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(guids))
	for _, a := range r.s.articles {
		if slices.Contains(guids, a.GUID) {
			out[a.GUID] = true
		}
	}
	return out, nil
}

func (r *articleRepo) CountBySource(_ context.Context, sourceID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.articles {
		if a.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

func (r *articleRepo) InsertFetched(_ context.Context, sourceID uuid.UUID, articles []*entity.Article, fetchedAt time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.InsertCalls++
	if err := r.s.fail("InsertFetched"); err != nil {
		return 0, err
	}
	existing := make(map[string]bool, len(r.s.articles))
	for _, a := range r.s.articles {
		existing[a.GUID] = true
	}
	inserted := 0
	for _, a := range articles {
		if existing[a.GUID] {
			continue
		}
		cp := *a
		cp.SourceID = sourceID
		r.s.articles[cp.ID] = &cp
		existing[cp.GUID] = true
		inserted++
	}
	if src, ok := r.s.sources[sourceID]; ok {
		t := fetchedAt
		src.LastFetched = &t
	}
	r.s.recount(sourceID)
	return inserted, nil
}

func (r *articleRepo) ListByLabelStatus(_ context.Context, status entity.LabelStatus, limit int) ([]entity.ArticleWithSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("ListByLabelStatus"); err != nil {
		return nil, err
	}
	var out []entity.ArticleWithSource
	for _, a := range r.s.sortedArticles() {
		if len(out) == limit {
			break
		}
		if a.AILabelStatus != status || a.IsTrashed {
			continue
		}
		cp := *a
		title := ""
		if src, ok := r.s.sources[a.SourceID]; ok {
			title = src.Title
		}
		out = append(out, entity.ArticleWithSource{Article: &cp, SourceTitle: title})
	}
	return out, nil
}

func (r *articleRepo) CountByLabelStatus(_ context.Context, status entity.LabelStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.articles {
		if a.AILabelStatus == status && !a.IsTrashed {
			n++
		}
	}
	return n, nil
}

// cas runs fn under the lock after the BeforeCAS hook. fn reports whether the row moved.
func (r *articleRepo) cas(op string, id uuid.UUID, fn func(a *entity.Article) bool) (bool, error) {
	if hook := r.s.BeforeCAS; hook != nil {
		hook(op, id)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(op); err != nil {
		return false, err
	}
	a, ok := r.s.articles[id]
	if !ok {
		return false, nil
	}
	return fn(a), nil
}

func (r *articleRepo) ClaimLabel(_ context.Context, id uuid.UUID, from entity.LabelStatus) (bool, error) {
	return r.cas("ClaimLabel", id, func(a *entity.Article) bool {
		if a.AILabelStatus != from {
			return false
		}
		a.AILabelStatus = entity.LabelProcessing
		return true
	})
}

func (r *articleRepo) CompleteLabel(_ context.Context, id uuid.UUID, labels entity.Labels, trash bool, now time.Time) (bool, error) {
	return r.cas("CompleteLabel", id, func(a *entity.Article) bool {
		if a.AILabelStatus != entity.LabelProcessing {
			return false
		}
		l := labels
		a.AILabels = &l
		a.AILabelStatus = entity.LabelDone
		a.AILabelError = ""
		if trash && !a.IsTrashed {
			t := now
			a.IsTrashed = true
			a.TrashedAt = &t
			r.s.recount(a.SourceID)
		}
		if trash && (a.AISummaryStatus == entity.SummaryPending || a.AISummaryStatus == entity.SummaryError) {
			a.AISummaryStatus = entity.SummaryIgnored
			a.AISummaryError = entity.IgnoredSummaryReason
		}
		return true
	})
}

func (r *articleRepo) FailLabel(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.cas("FailLabel", id, func(a *entity.Article) bool {
		if a.AILabelStatus != entity.LabelProcessing {
			return false
		}
		a.AILabelStatus = entity.LabelError
		a.AILabelError = reason
		return true
	})
}

func (r *articleRepo) ReleaseLabel(_ context.Context, id uuid.UUID, to entity.LabelStatus) (bool, error) {
	return r.cas("ReleaseLabel", id, func(a *entity.Article) bool {
		if a.AILabelStatus != entity.LabelProcessing {
			return false
		}
		a.AILabelStatus = to
		return true
	})
}

func summaryCandidate(a *entity.Article, statuses []entity.SummaryStatus) bool {
	return a.AILabelStatus == entity.LabelDone && !a.IsTrashed && slices.Contains(statuses, a.AISummaryStatus)
}

func (r *articleRepo) ListSummaryCandidates(_ context.Context, statuses []entity.SummaryStatus, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("ListSummaryCandidates"); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, a := range r.s.sortedArticles() {
		if len(ids) == limit {
			break
		}
		if summaryCandidate(a, statuses) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (r *articleRepo) CountSummaryCandidates(_ context.Context, statuses []entity.SummaryStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.articles {
		if summaryCandidate(a, statuses) {
			n++
		}
	}
	return n, nil
}

func claimable(a *entity.Article) bool {
	return a.AISummaryStatus.IsClaimable() && a.AILabelStatus == entity.LabelDone
}

func (r *articleRepo) ClaimSummary(_ context.Context, id uuid.UUID) (bool, error) {
	return r.cas("ClaimSummary", id, func(a *entity.Article) bool {
		if !claimable(a) {
			return false
		}
		a.AISummaryStatus = entity.SummaryProcessing
		a.AISummaryError = ""
		return true
	})
}

func (r *articleRepo) IgnoreSummary(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.cas("IgnoreSummary", id, func(a *entity.Article) bool {
		if !claimable(a) {
			return false
		}
		a.AISummaryStatus = entity.SummaryIgnored
		a.AISummaryError = reason
		return true
	})
}

func (r *articleRepo) CompleteSummary(_ context.Context, id uuid.UUID, summary string, now time.Time) (bool, error) {
	return r.cas("CompleteSummary", id, func(a *entity.Article) bool {
		if a.AISummaryStatus != entity.SummaryProcessing {
			return false
		}
		t := now
		a.AISummary = summary
		a.AISummaryStatus = entity.SummarySuccess
		a.AISummaryError = ""
		a.AISummaryGeneratedAt = &t
		return true
	})
}

func (r *articleRepo) FailSummary(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.cas("FailSummary", id, func(a *entity.Article) bool {
		if a.AISummaryStatus != entity.SummaryProcessing {
			return false
		}
		a.AISummaryStatus = entity.SummaryError
		a.AISummaryError = reason
		return true
	})
}

func (r *articleRepo) update(op string, id uuid.UUID, fn func(a *entity.Article)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(op); err != nil {
		return err
	}
	a, ok := r.s.articles[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrNotFound)
	}
	fn(a)
	return nil
}

func (r *articleRepo) SetRead(_ context.Context, id uuid.UUID, read bool) error {
	return r.update("SetRead", id, func(a *entity.Article) { a.IsRead = read })
}

func (r *articleRepo) SetFavorite(_ context.Context, id uuid.UUID, favorite bool) error {
	return r.update("SetFavorite", id, func(a *entity.Article) { a.IsFavorite = favorite })
}

func (r *articleRepo) Trash(_ context.Context, id uuid.UUID, now time.Time) error {
	return r.update("Trash", id, func(a *entity.Article) {
		t := now
		a.IsTrashed = true
		a.TrashedAt = &t
	})
}

func (r *articleRepo) Restore(_ context.Context, id uuid.UUID) error {
	return r.update("Restore", id, func(a *entity.Article) {
		a.IsTrashed = false
		a.TrashedAt = nil
	})
}

func (r *articleRepo) ownedBy(a *entity.Article, userID uuid.UUID) bool {
	src, ok := r.s.sources[a.SourceID]
	return ok && src.UserID == userID
}

func (r *articleRepo) EmptyTrash(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.articles {
		if a.IsTrashed && r.ownedBy(a, userID) {
			delete(r.s.articles, id)
			n++
		}
	}
	return n, nil
}

func (r *articleRepo) Counts(_ context.Context, userID uuid.UUID) (repository.ArticleCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var c repository.ArticleCounts
	for _, a := range r.s.articles {
		if !r.ownedBy(a, userID) {
			continue
		}
		switch {
		case a.IsTrashed:
			c.Trashed++
		default:
			if !a.IsRead {
				c.Unread++
			}
			if a.IsFavorite {
				c.Favorite++
			}
		}
	}
	return c, nil
}
