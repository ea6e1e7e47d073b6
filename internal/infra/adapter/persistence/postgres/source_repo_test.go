package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── ヘルパ ──────────────────────────────── */

var sourceCols = []string{
	"id", "user_id", "url", "title", "description", "icon",
	"category", "unread_count", "created_at", "last_fetched",
}

func sourceRow(rows *sqlmock.Rows, src *entity.Source) *sqlmock.Rows {
	var lastFetched any
	if src.LastFetched != nil {
		lastFetched = *src.LastFetched
	}
	return rows.AddRow(
		src.ID.String(), src.UserID.String(), src.URL, src.Title, src.Description, src.Icon,
		src.Category, src.UnreadCount, src.CreatedAt, lastFetched,
	)
}

func sampleSource() *entity.Source {
	fetched := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &entity.Source{
		ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		UserID:      entity.DefaultUserID,
		URL:         "https://example.com/feed.xml",
		Title:       "Example",
		Description: "An example feed",
		Icon:        entity.DefaultIcon,
		Category:    entity.DefaultCategory,
		UnreadCount: 3,
		CreatedAt:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		LastFetched: &fetched,
	}
}

/* ──────────────────────────────── 1. Get ──────────────────────────────── */

func TestSourceRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleSource()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sources`)).
		WithArgs(want.ID).
		WillReturnRows(sourceRow(sqlmock.NewRows(sourceCols), want))

	got, err := postgres.NewSourceRepo(db).Get(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSourceRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sources`)).
		WillReturnRows(sqlmock.NewRows(sourceCols))

	got, err := postgres.NewSourceRepo(db).Get(context.Background(), uuid.New())
	if err != nil || got != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", got, err)
	}
}

/* ──────────────────────────────── 2. ListForFetch ──────────────────────────────── */

func TestSourceRepo_ListForFetch_OrdersNeverFetchedFirst(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	fresh := sampleSource()
	fresh.ID = uuid.New()
	fresh.LastFetched = nil

	rows := sqlmock.NewRows(sourceCols)
	sourceRow(rows, fresh)
	sourceRow(rows, sampleSource())
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY last_fetched ASC NULLS FIRST`)).
		WillReturnRows(rows)

	got, err := postgres.NewSourceRepo(db).ListForFetch(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("ListForFetch err=%v len=%d", err, len(got))
	}
	if got[0].LastFetched != nil {
		t.Fatalf("first source should be unfetched, got %v", got[0].LastFetched)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 3. Create / Delete ──────────────────────────────── */

func TestSourceRepo_Create(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	src := sampleSource()
	src.ID = uuid.Nil

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sources`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := postgres.NewSourceRepo(db).Create(context.Background(), src); err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if src.ID == uuid.Nil {
		t.Fatal("Create should assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSourceRepo_Delete_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sources WHERE id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := postgres.NewSourceRepo(db).Delete(context.Background(), uuid.New())
	if !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSourceRepo_ExistsByURL(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(entity.DefaultUserID, "https://example.com/feed.xml").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := postgres.NewSourceRepo(db).ExistsByURL(context.Background(), entity.DefaultUserID, "https://example.com/feed.xml")
	if err != nil || !ok {
		t.Fatalf("ExistsByURL = (%v, %v)", ok, err)
	}
}
