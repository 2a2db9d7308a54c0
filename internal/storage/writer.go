package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/shaper"
)

// WriterService implements the Monitor Pattern for thread safety: it is the
// only goroutine touching FilePath, so many producers can share one input.
type WriterService struct {
	FilePath string

	mu      sync.Mutex
	err     error
	written int
}

// Start appends every value from input to FilePath as NDJSON until input is closed.
// Values that fail to encode are skipped and reported by Err.
func (w *WriterService) Start(wg *sync.WaitGroup, input <-chan any) {
	defer wg.Done()

	if err := ensureDir(w.FilePath); err != nil {
		w.fail(err)
		drain(input)
		return
	}
	f, err := os.OpenFile(w.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		w.fail(err)
		drain(input)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	for v := range input {
		// Write as NDJSON
		if err := enc.Encode(v); err != nil {
			w.fail(err)
			continue
		}
		w.mu.Lock()
		w.written++
		w.mu.Unlock()
	}
}

// Err returns the first write error, if any.
func (w *WriterService) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written counts the lines appended so far.
func (w *WriterService) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *WriterService) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = fmt.Errorf("storage/WriterService: %s: %w", w.FilePath, err)
	}
}

func drain(input <-chan any) {
	for range input {
	}
}

// NDJSONSink appends one entry per line. For the split shape the comment rows
// go to a sibling <base>_comments.ndjson file.
type NDJSONSink struct{}

func (NDJSONSink) Write(ctx context.Context, res *shaper.Result, dest string) error {
	const op = "storage/NDJSONSink.Write"

	values := make([]any, 0, len(res.Items))
	for _, e := range res.Items {
		values = append(values, e)
	}
	if err := appendLines(ctx, dest, values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.Shape != domain.ShapeSplit {
		return nil
	}
	rows := make([]any, 0, len(res.Comments))
	for _, c := range res.Comments {
		rows = append(rows, c)
	}
	if err := appendLines(ctx, CommentsPath(dest), rows); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func appendLines(ctx context.Context, path string, values []any) error {
	input := make(chan any, 100)
	w := &WriterService{FilePath: path}

	var wg sync.WaitGroup
	wg.Add(1)
	go w.Start(&wg, input)

	var err error
	for _, v := range values {
		if err = ctx.Err(); err != nil {
			break
		}
		input <- v
	}
	close(input)
	wg.Wait()

	if err != nil {
		return err
	}
	return w.Err()
}
