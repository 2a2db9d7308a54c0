package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/spf13/cobra"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/ingest"
	"github.com/qepting91/social-scraper/internal/pipeline"
	"github.com/qepting91/social-scraper/internal/shaper"
	"github.com/qepting91/social-scraper/internal/storage"
)

var (
	batchFlags   requestFlags
	batchTargets string
	batchOutDir  string
	batchFormat  string
	batchSummary string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Collect every target listed in a CSV file",
	Long: `Batch reads one target per row from --targets. Recognised columns are
source, subject, query, limit, sort, window, min_score, min_secondary and
language; the older subreddit,min_score layout also works. Cells left empty
take the value of the matching flag. Invalid rows are skipped.

Each target is written to <out-dir>/<index>_<source>_<subject>.<format>, and one
summary line per target is appended to --summary in input order.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchFlags.register(batchCmd)
	fs := batchCmd.Flags()
	fs.StringVar(&batchTargets, "targets", "input/subreddits.csv", "CSV file of targets")
	fs.StringVar(&batchOutDir, "out-dir", "data", "directory for per-target output")
	fs.StringVar(&batchFormat, "format", "csv", "per-target output extension: csv, json, ndjson or db")
	fs.StringVar(&batchSummary, "summary", "data/batch.ndjson", "NDJSON run summary, empty to skip")
}

// batchResult is one target's outcome, kept at the target's input index.
type batchResult struct {
	req  domain.CollectionRequest
	res  *shaper.Result
	path string
	err  error
}

// summaryLine is what the summary file records per target.
type summaryLine struct {
	Index    int    `json:"index"`
	Source   string `json:"source"`
	Subject  string `json:"subject"`
	RunID    string `json:"run_id,omitempty"`
	Items    int    `json:"items"`
	Comments int    `json:"comments"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := state.logger

	base, err := batchFlags.request("")
	if err != nil {
		return err
	}
	targets, err := ingest.LoadTargets(batchTargets, base)
	if err != nil {
		return fmt.Errorf("cmd/batch: load targets: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("cmd/batch: %w: no valid targets in %s", domain.ErrInvalidConfiguration, batchTargets)
	}

	// One pipeline per source. Pipelines are safe for concurrent Collect calls.
	pipelines := make(map[domain.Source]*pipeline.Pipeline)
	for _, t := range targets {
		if _, ok := pipelines[t.Source]; ok {
			continue
		}
		p, err := state.newPipeline(t.Source)
		if err != nil {
			return err
		}
		pipelines[t.Source] = p
	}

	results := collectAll(ctx, logger, pipelines, targets, state.cfg.Batch.Workers)

	var failed int
	for i := range results {
		r := &results[i]
		if r.err != nil {
			failed++
			continue
		}
		r.path = filepath.Join(batchOutDir, outputName(i, r.req, batchFormat))
		if err := write(ctx, cmd.OutOrStdout(), r.res, r.path); err != nil {
			r.err = err
			failed++
		}
	}

	if batchSummary != "" {
		if err := writeSummary(batchSummary, results); err != nil {
			return err
		}
	}

	logger.Info("batch_complete", "targets", len(targets), "failed", failed)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed == len(targets) {
		return fmt.Errorf("cmd/batch: all %d targets failed: %w", failed, results[0].err)
	}
	return nil
}

// collectAll runs every target through a fixed pool of workers. Results are
// written into the slot of their target so the output keeps input order.
func collectAll(ctx context.Context, logger *slog.Logger, pipelines map[domain.Source]*pipeline.Pipeline, targets []domain.CollectionRequest, workers int) []batchResult {
	if workers < 1 {
		workers = 1
	}

	jobQueue := make(chan int, len(targets))
	results := make([]batchResult, len(targets))
	var workerWg sync.WaitGroup

	for w := 0; w < workers; w++ {
		workerWg.Add(1)
		go func(id int) {
			defer workerWg.Done()
			for i := range jobQueue {
				t := targets[i]
				results[i].req = t
				if err := ctx.Err(); err != nil {
					results[i].err = err
					continue
				}
				res, err := pipelines[t.Source].Collect(ctx, t)
				if err != nil {
					logger.Error("scrape_failed", "worker", id, "source", string(t.Source), "subject", t.Subject, "err", err)
					results[i].err = err
					continue
				}
				results[i].res = res
			}
		}(w)
	}

	logger.Info("batch_start", "targets", len(targets), "workers", workers)
	for i := range targets {
		jobQueue <- i
	}
	close(jobQueue)
	workerWg.Wait()
	return results
}

// writeSummary streams the per-target lines through a WriterService.
func writeSummary(path string, results []batchResult) error {
	queue := make(chan any, len(results))
	var writerWg sync.WaitGroup

	writer := &storage.WriterService{FilePath: path}
	writerWg.Add(1)
	go writer.Start(&writerWg, queue)

	for i, r := range results {
		line := summaryLine{Index: i, Source: string(r.req.Source), Subject: r.req.Subject, Output: r.path}
		if r.res != nil {
			line.RunID = r.res.RunID
			line.Items = len(r.res.Items)
			line.Comments = len(r.res.Comments)
		}
		if r.err != nil {
			line.Output = ""
			line.Error = r.err.Error()
		}
		queue <- line
	}
	close(queue)
	writerWg.Wait()

	if err := writer.Err(); err != nil {
		return fmt.Errorf("cmd/batch: summary: %w", err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// outputName leads with the target's input index so targets that share a
// subject but differ in sort, window or query get separate files.
func outputName(index int, req domain.CollectionRequest, format string) string {
	subject := req.Subject
	if subject == "" {
		subject = req.Query
	}
	return fmt.Sprintf("%02d_%s_%s.%s", index, req.Source, unsafeName.ReplaceAllString(subject, "_"), format)
}
