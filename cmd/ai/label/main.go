// Package main provides a CLI command for running one labeling pass.
// Usage: ai-label [-batches N] [-errors] [-all] [-summarize] [-output json]
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
	"ai-feed-reader/internal/usecase/label"
	"ai-feed-reader/internal/usecase/summary"
)

// LabelOutput represents the JSON output format for a labeling pass.
type LabelOutput struct {
	Queue      string         `json:"queue"`
	Batches    int            `json:"batches"`
	Labeled    int            `json:"labeled"`
	Trashed    int            `json:"trashed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Deferred   int            `json:"deferred"`
	Summarized *SummaryCounts `json:"summarized,omitempty"`
	Duration   string         `json:"duration"`
}

// SummaryCounts is the outcome of the optional follow-up summarization.
type SummaryCounts struct {
	Success int `json:"success"`
	Ignored int `json:"ignored"`
	Failed  int `json:"failed"`
}

func main() {
	var (
		maxBatches   int
		errorsOnly   bool
		drainAll     bool
		summarize    bool
		outputFormat string
		timeout      time.Duration
	)
	flag.IntVar(&maxBatches, "batches", 0, "Maximum number of batches to process (0 = until the queue is empty)")
	flag.BoolVar(&errorsOnly, "errors", false, "Retry articles whose labeling failed instead of pending ones")
	flag.BoolVar(&drainAll, "all", false, "Also process a trailing batch smaller than the batch size")
	flag.BoolVar(&summarize, "summarize", false, "Summarize the freshly labeled articles afterwards")
	flag.StringVar(&outputFormat, "output", "text", "Output format: text or json")
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "Upper bound for the whole run")
	flag.Parse()

	if maxBatches < 0 {
		fmt.Fprintln(os.Stderr, "Error: -batches cannot be negative")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: ai-label [-batches N] [-errors] [-all] [-summarize] [-output json]")
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

	artRepo := pgRepo.NewArticleRepo(database)
	labelSvc := label.NewService(artRepo, aiStack.Completer, aiStack.Taxonomy, aiStack.Config.Label, nil)

	start := time.Now()
	var res *label.RunResult
	queue := "pending"
	if errorsOnly {
		queue = "error"
		res, err = labelSvc.ProcessErrors(ctx, maxBatches)
	} else {
		res, err = labelSvc.ProcessPending(ctx, maxBatches, drainAll)
	}
	if err != nil {
		logger.Error("label run aborted", slog.Any("error", err))
		if res == nil {
			os.Exit(1)
		}
	}

	out := LabelOutput{
		Queue:    queue,
		Batches:  res.Batches,
		Labeled:  res.Labeled,
		Trashed:  res.Trashed,
		Failed:   res.Failed,
		Skipped:  res.Skipped,
		Deferred: res.Deferred,
	}

	if summarize && len(res.Summarize) > 0 {
		summarySvc := summary.NewService(artRepo, aiStack.Completer, aiStack.Taxonomy, aiStack.Config.Summary)
		br := summarySvc.SummarizeBatch(ctx, res.Summarize)
		out.Summarized = &SummaryCounts{Success: br.Success, Ignored: br.Ignored, Failed: br.Failed}
	}
	out.Duration = time.Since(start).Round(time.Millisecond).String()

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
func outputText(out LabelOutput) {
	fmt.Printf("Labeling pass over %s articles (%s)\n", out.Queue, out.Duration)
	fmt.Printf("Batches:  %d\n", out.Batches)
	fmt.Printf("Labeled:  %d\n", out.Labeled)
	fmt.Printf("Trashed:  %d\n", out.Trashed)
	fmt.Printf("Failed:   %d\n", out.Failed)
	fmt.Printf("Skipped:  %d\n", out.Skipped)
	if out.Deferred > 0 {
		fmt.Printf("Deferred: %d (rerun with -all to process a partial batch)\n", out.Deferred)
	}
	if s := out.Summarized; s != nil {
		fmt.Printf("\nSummaries: %d success, %d ignored, %d failed\n", s.Success, s.Ignored, s.Failed)
	}
}

// outputJSON prints the run tally in JSON format.
func outputJSON(out LabelOutput) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}
