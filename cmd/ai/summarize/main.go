// Package main provides a CLI command for running one summarization pass.
// Usage: ai-summarize [-max N] [-errors] [-id UUID] [-output json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ai-feed-reader/internal/bootstrap"
	pgRepo "ai-feed-reader/internal/infra/adapter/persistence/postgres"
	"ai-feed-reader/internal/observability/logging"
	"ai-feed-reader/internal/usecase/summary"

	"github.com/google/uuid"
)

// SummaryOutput represents the JSON output format for a summarization pass.
type SummaryOutput struct {
	Queue    string `json:"queue"`
	Success  int    `json:"success"`
	Ignored  int    `json:"ignored"`
	Conflict int    `json:"conflict"`
	Failed   int    `json:"failed"`
	NotFound int    `json:"not_found"`
	Duration string `json:"duration"`
}

func main() {
	var (
		maxCount     int
		errorsOnly   bool
		articleID    string
		outputFormat string
		timeout      time.Duration
	)
	flag.IntVar(&maxCount, "max", 0, "Maximum number of articles to process (0 = until the queue is empty)")
	flag.BoolVar(&errorsOnly, "errors", false, "Retry articles whose summarization failed instead of pending ones")
	flag.StringVar(&articleID, "id", "", "Summarize a single article by id")
	flag.StringVar(&outputFormat, "output", "text", "Output format: text or json")
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "Upper bound for the whole run")
	flag.Parse()

	var single uuid.UUID
	if articleID != "" {
		id, err := uuid.Parse(articleID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid article id '%s'\n", articleID)
			os.Exit(1)
		}
		single = id
	}
	if maxCount < 0 {
		fmt.Fprintln(os.Stderr, "Error: -max cannot be negative")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: ai-summarize [-max N] [-errors] [-id UUID] [-output json]")
		os.Exit(1)
	}

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), logger), timeout)
	defer cancel()

	database, err := bootstrap.OpenDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	aiStack, err := bootstrap.LoadAI(logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize AI provider: %v\n", err)
		os.Exit(1)
	}

	svc := summary.NewService(pgRepo.NewArticleRepo(database), aiStack.Completer, aiStack.Taxonomy, aiStack.Config.Summary)

	start := time.Now()
	var res summary.BatchResult
	queue := "pending"
	switch {
	case single != uuid.Nil:
		queue = single.String()
		res = svc.SummarizeBatch(ctx, []uuid.UUID{single})
	case errorsOnly:
		queue = "error"
		res, err = svc.ProcessErrors(ctx, maxCount)
	default:
		res, err = svc.ProcessPending(ctx, maxCount)
	}
	if err != nil {
		logger.Error("summary run aborted", slog.Any("error", err))
	}

	out := SummaryOutput{
		Queue:    queue,
		Success:  res.Success,
		Ignored:  res.Ignored,
		Conflict: res.Conflict,
		Failed:   res.Failed,
		NotFound: res.NotFound,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if outputFormat == "json" {
		outputJSON(out)
	} else {
		outputText(out)
	}
	if err != nil {
		os.Exit(1)
	}
}

// outputText prints the run tally in human-readable format.
func outputText(out SummaryOutput) {
	fmt.Printf("Summarization pass over %s (%s)\n", out.Queue, out.Duration)
	fmt.Printf("Success:   %d\n", out.Success)
	fmt.Printf("Ignored:   %d\n", out.Ignored)
	fmt.Printf("Conflict:  %d\n", out.Conflict)
	fmt.Printf("Failed:    %d\n", out.Failed)
	if out.NotFound > 0 {
		fmt.Printf("Not found: %d\n", out.NotFound)
	}
}

// outputJSON prints the run tally in JSON format.
func outputJSON(out SummaryOutput) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}
