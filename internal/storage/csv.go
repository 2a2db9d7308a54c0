package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/shaper"
)

// CSVSink writes the item table with the projected columns as its header.
// The split shape also writes the comment table next to it.
type CSVSink struct{}

func (CSVSink) Write(ctx context.Context, res *shaper.Result, dest string) error {
	const op = "storage/CSVSink.Write"

	rows := make([][]string, 0, len(res.Items))
	for _, e := range res.Items {
		rows = append(rows, e.Record.Strings())
	}
	if err := writeCSV(ctx, dest, res.Columns, rows); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.Shape != domain.ShapeSplit {
		return nil
	}
	comments := make([][]string, 0, len(res.Comments))
	for _, c := range res.Comments {
		comments = append(comments, c.Strings())
	}
	if err := writeCSV(ctx, CommentsPath(dest), shaper.CommentColumns, comments); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func writeCSV(ctx context.Context, path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// Table is a CSV file read back: its header and rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the values of the named column, or nil when absent.
func (t Table) Column(name string) []string {
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		if idx < len(r) {
			out[i] = r[idx]
		}
	}
	return out
}

// ReadCSV loads a table written by CSVSink.
func ReadCSV(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	r := csv.NewReader(StripBOM(f))
	var t Table
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("storage/ReadCSV: %s: %w", path, err)
		}
		if t.Header == nil {
			t.Header = rec
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
