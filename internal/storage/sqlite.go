package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/qepting91/social-scraper/internal/shaper"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	id          TEXT NOT NULL,
	source      TEXT NOT NULL,
	subject     TEXT NOT NULL,
	record      TEXT NOT NULL,
	tree_status TEXT,
	PRIMARY KEY (run_id, id)
);
CREATE TABLE IF NOT EXISTS comments (
	run_id     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	item_id    TEXT NOT NULL,
	id         TEXT NOT NULL,
	parent_id  TEXT,
	author     TEXT,
	body       TEXT,
	score      INTEGER,
	created_at INTEGER,
	permalink  TEXT,
	depth      INTEGER NOT NULL,
	FOREIGN KEY (run_id, item_id) REFERENCES items(run_id, id)
);
CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(run_id, item_id);
`

// SQLiteSink stores a result as an items table and a comments table keyed by
// item_id. Each run is written in one transaction.
type SQLiteSink struct{}

func (SQLiteSink) Write(ctx context.Context, res *shaper.Result, dest string) error {
	const op = "storage/SQLiteSink.Write"

	if err := ensureDir(dest); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	db, err := OpenSQLite(ctx, dest)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err := writeRun(ctx, db, res); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// OpenSQLite opens path and creates the tables when missing.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func writeRun(ctx context.Context, db *sql.DB, res *shaper.Result) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	items, err := tx.PrepareContext(ctx, `INSERT INTO items (run_id, position, id, source, subject, record, tree_status) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer items.Close()

	for i, e := range res.Items {
		rec, err := json.Marshal(e.Record)
		if err != nil {
			return err
		}
		if _, err := items.ExecContext(ctx, res.RunID, i, e.Record.ID, string(res.Source), res.Subject, string(rec), e.TreeStatus); err != nil {
			return fmt.Errorf("insert item %s: %w", e.Record.ID, err)
		}
	}

	comments, err := tx.PrepareContext(ctx, `INSERT INTO comments (run_id, position, item_id, id, parent_id, author, body, score, created_at, permalink, depth) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer comments.Close()

	for i, c := range res.Comments {
		if _, err := comments.ExecContext(ctx, res.RunID, i, c.ItemID, c.ID, c.ParentID, c.Author, c.Body, c.Score, c.CreatedAt, c.Permalink, c.Depth); err != nil {
			return fmt.Errorf("insert comment %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}
