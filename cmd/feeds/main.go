// Package main provides the feed administration CLI.
//
// Usage:
//
//	feeds validate URL
//	feeds add [-title T] [-category C] URL
//	feeds list
//	feeds ingest SOURCE_ID
//	feeds delete SOURCE_ID
//	feeds counts
//	feeds empty-trash
//
// Every command acts on behalf of the single default user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"ai-feed-reader/internal/bootstrap"
	"ai-feed-reader/internal/domain/entity"
	pgRepo "ai-feed-reader/internal/infra/adapter/persistence/postgres"
	"ai-feed-reader/internal/infra/feedcache"
	"ai-feed-reader/internal/infra/scraper"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/repository"
	"ai-feed-reader/internal/usecase/article"
	"ai-feed-reader/internal/usecase/ingest"
	"ai-feed-reader/internal/usecase/source"

	"github.com/google/uuid"
)

const usage = `Usage: feeds <command> [arguments]

Commands:
  validate URL                       fetch and parse a feed without subscribing
  add [-title T] [-category C] URL   subscribe to a feed and ingest it once
  list                               list subscribed sources
  ingest SOURCE_ID                   ingest one source now
  delete SOURCE_ID                   delete a source and its articles
  counts                             unread / favorite / trashed counters
  empty-trash                        permanently delete trashed articles
`

type app struct {
	sources  *source.Service
	articles *article.Service
	ingest   *ingest.Service
	out      io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), logger), 10*time.Minute)
	defer cancel()

	database, err := bootstrap.OpenDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	client := bootstrap.HTTPClient()
	a := newApp(
		pgRepo.NewSourceRepo(database),
		pgRepo.NewArticleRepo(database),
		scraper.NewRSSFetcher(client),
		scraper.NewFaviconFinder(client),
		os.Stdout,
	)

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, "\n"+usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func newApp(srcRepo repository.SourceRepository, artRepo repository.ArticleRepository, fetcher ingest.FeedFetcher, icons source.IconFinder, out io.Writer) *app {
	cache := feedcache.New(feedcache.Config{})
	ingestSvc := ingest.NewService(srcRepo, artRepo, fetcher, cache, nil)
	return &app{
		sources: &source.Service{
			SourceRepo:  srcRepo,
			ArticleRepo: artRepo,
			Ingestor:    ingestSvc,
			Icons:       icons,
			Cache:       cache,
		},
		articles: article.NewService(artRepo, srcRepo),
		ingest:   ingestSvc,
		out:      out,
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	user := entity.DefaultUserID

	switch cmd {
	case "validate":
		if len(args) != 1 {
			return errUsage
		}
		v, err := a.sources.ValidateFeed(ctx, args[0])
		if err != nil {
			return err
		}
		if !v.Valid {
			return fmt.Errorf("feed is not valid: %s", v.Error)
		}
		fmt.Fprintf(a.out, "Title:       %s\nDescription: %s\nIcon:        %s\n", v.Title, v.Description, v.Icon)
		return nil

	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		title := fs.String("title", "", "display title (default: the feed's title)")
		category := fs.String("category", "", "category")
		if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
			return errUsage
		}
		res, err := a.sources.CreateSource(ctx, source.CreateInput{
			UserID:   user,
			URL:      fs.Arg(0),
			Title:    *title,
			Category: *category,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created source %s (%s)\n", res.Source.ID, res.Source.Title)
		if res.IngestErr != nil {
			fmt.Fprintf(a.out, "First ingest failed: %v\n", res.IngestErr)
		} else if res.Ingest != nil {
			fmt.Fprintf(a.out, "Ingested %d new articles\n", res.Ingest.Inserted)
		}
		return nil

	case "list":
		list, err := a.sources.List(ctx, user)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tUNREAD\tLAST FETCHED")
		for _, s := range list {
			last := "never"
			if s.LastFetched != nil {
				last = s.LastFetched.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Title, s.Category, s.UnreadCount, last)
		}
		return tw.Flush()

	case "ingest":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		res, err := a.ingest.IngestByID(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Found %d entries, inserted %d, duplicated %d (%s)\n",
			res.Found, res.Inserted, res.Duplicated, res.Duration.Round(time.Millisecond))
		return nil

	case "delete":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		n, err := a.sources.Delete(ctx, user, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted source %s and %d articles\n", id, n)
		return nil

	case "counts":
		c, err := a.articles.Counts(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Unread:   %d\nFavorite: %d\nTrashed:  %d\n", c.Unread, c.Favorite, c.Trashed)
		return nil

	case "empty-trash":
		n, err := a.articles.EmptyTrash(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %d trashed articles\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func parseID(args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, errUsage
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid source id %q: %w", args[0], errUsage)
	}
	return id, nil
}
