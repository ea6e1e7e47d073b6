package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/repository/repotest"
)

/* ───── スタブ ───── */

type stubFetcher struct {
	feed *entity.Feed
	err  error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*entity.Feed, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.feed
	cp.FetchedURL = url
	return &cp, nil
}

type stubIcons struct{}

func (stubIcons) Find(context.Context, string) string { return "" }

func newTestApp(t *testing.T) (*app, *repotest.Store, *stubFetcher, *bytes.Buffer) {
	t.Helper()
	store := repotest.NewStore()
	fetcher := &stubFetcher{feed: &entity.Feed{
		Info: entity.FeedInfo{Title: "Example", Description: "An example feed"},
		Entries: []entity.FeedEntry{
			{GUID: "1", Title: "One", Link: "https://example.com/1"},
			{GUID: "2", Title: "Two", Link: "https://example.com/2"},
		},
	}}
	out := &bytes.Buffer{}
	return newApp(store.SourceRepo(), store.ArticleRepo(), fetcher, stubIcons{}, out), store, fetcher, out
}

/* ───── コマンド ───── */

func TestRun_Validate(t *testing.T) {
	a, _, _, out := newTestApp(t)

	require.NoError(t, a.run(context.Background(), "validate", []string{"https://example.com/feed"}))
	assert.Contains(t, out.String(), "Title:       Example")
	assert.Contains(t, out.String(), entity.DefaultIcon)
}

func TestRun_ValidateInvalid(t *testing.T) {
	a, _, fetcher, _ := newTestApp(t)
	fetcher.err = errors.New("connection refused")

	err := a.run(context.Background(), "validate", []string{"https://example.com/feed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed is not valid")
}

func TestRun_AddThenList(t *testing.T) {
	a, store, _, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "add", []string{"-title", "Mine", "-category", "go", "https://example.com/feed"}))
	assert.Contains(t, out.String(), "(Mine)")
	assert.Contains(t, out.String(), "Ingested 2 new articles")

	out.Reset()
	require.NoError(t, a.run(ctx, "list", nil))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "LAST FETCHED")
	assert.Contains(t, string(lines[1]), "Mine")
	assert.Contains(t, string(lines[1]), "go")
	assert.NotContains(t, string(lines[1]), "never")

	sources, err := store.SourceRepo().List(ctx, entity.DefaultUserID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Len(t, store.ArticlesOf(sources[0].ID), 2)
}

func TestRun_IngestAndDelete(t *testing.T) {
	a, store, _, out := newTestApp(t)
	ctx := context.Background()
	src := store.AddSource(entity.Source{UserID: entity.DefaultUserID, URL: "https://example.com/feed", Title: "Example"})

	require.NoError(t, a.run(ctx, "ingest", []string{src.ID.String()}))
	assert.Contains(t, out.String(), "Found 2 entries, inserted 2, duplicated 0")

	out.Reset()
	require.NoError(t, a.run(ctx, "delete", []string{src.ID.String()}))
	assert.Contains(t, out.String(), "and 2 articles")
	assert.Nil(t, store.Source(src.ID))
}

func TestRun_CountsAndEmptyTrash(t *testing.T) {
	a, store, _, out := newTestApp(t)
	ctx := context.Background()
	src := store.AddSource(entity.Source{UserID: entity.DefaultUserID, URL: "https://example.com/feed", Title: "Example"})
	store.AddArticle(entity.Article{SourceID: src.ID, GUID: "a"})
	store.AddArticle(entity.Article{SourceID: src.ID, GUID: "b", IsFavorite: true, IsRead: true})
	store.AddArticle(entity.Article{SourceID: src.ID, GUID: "c", IsTrashed: true})

	require.NoError(t, a.run(ctx, "counts", nil))
	assert.Equal(t, "Unread:   1\nFavorite: 1\nTrashed:  1\n", out.String())

	out.Reset()
	require.NoError(t, a.run(ctx, "empty-trash", nil))
	assert.Equal(t, "Deleted 1 trashed articles\n", out.String())
}

func TestRun_UsageErrors(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{"unknown command", "frobnicate", nil},
		{"validate without url", "validate", nil},
		{"add without url", "add", []string{"-title", "x"}},
		{"add unknown flag", "add", []string{"-bogus", "https://example.com/feed"}},
		{"ingest bad id", "ingest", []string{"not-a-uuid"}},
		{"delete without id", "delete", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.run(ctx, tt.cmd, tt.args)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestRun_IngestUnknownSource(t *testing.T) {
	a, _, _, _ := newTestApp(t)

	err := a.run(context.Background(), "ingest", []string{uuid.NewString()})
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NotErrorIs(t, err, errUsage)
}
