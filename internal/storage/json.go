package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/qepting91/social-scraper/internal/shaper"
)

// JSONSink writes the whole result as one pretty-printed document.
type JSONSink struct{}

func (JSONSink) Write(ctx context.Context, res *shaper.Result, dest string) error {
	const op = "storage/JSONSink.Write"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b, err := json.MarshalIndent(res.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ensureDir(dest); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(dest, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// StoredDocument is a JSON document read back. Items stay loosely typed since
// their fields depend on the projected columns.
type StoredDocument struct {
	RunID       string           `json:"run_id"`
	Source      string           `json:"source"`
	Subject     string           `json:"subject"`
	Schema      string           `json:"schema"`
	Shape       string           `json:"shape"`
	CollectedAt time.Time        `json:"collected_at"`
	Columns     []string         `json:"columns"`
	Items       []map[string]any `json:"items"`
	Comments    []map[string]any `json:"comments,omitempty"`
}

// ReadDocument loads a document written by JSONSink.
func ReadDocument(path string) (*StoredDocument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc StoredDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("storage/ReadDocument: %s: %w", path, err)
	}
	return &doc, nil
}
