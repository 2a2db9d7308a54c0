// Package shaper assembles projected items and reply trees into the requested output shape.
package shaper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/projector"
	"github.com/qepting91/social-scraper/internal/tree"
)

// CommentColumns are the columns of the split-shape comment table.
var CommentColumns = []string{
	"item_id", "id", "parent_id", "author", "body", "score", "created_at", "created_date", "permalink", "depth",
}

// Entry is one item of a result.
type Entry struct {
	Record projector.Record
	// Comments is set for the nested shape only.
	Comments   []domain.CommentNode
	TreeStatus string
	TreeError  string
}

// CommentRow is a reply flattened out of its tree and tagged with its item.
type CommentRow struct {
	ItemID string `json:"item_id"`
	domain.CommentNode
}

// Strings renders the row in CommentColumns order.
func (c CommentRow) Strings() []string {
	date := c.CreatedDate
	created := ""
	if c.CreatedAt != 0 {
		created = strconv.FormatInt(c.CreatedAt, 10)
	}
	return []string{
		c.ItemID, c.ID, c.ParentID, c.Author, c.Body, strconv.Itoa(c.Score),
		created, date, c.Permalink, strconv.Itoa(c.Depth),
	}
}

// Meta describes the run a result came from.
type Meta struct {
	RunID       string
	Source      domain.Source
	Subject     string
	Schema      string
	Shape       domain.Shape
	CollectedAt time.Time
}

// Result is the output of one collection run.
type Result struct {
	Meta
	Columns  []string
	Items    []Entry
	Comments []CommentRow
	Pruned   []tree.Pruned
}

// Build shapes records and, for nested and split shapes, their forests.
// forests must be nil or parallel to records.
func Build(meta Meta, columns []string, records []projector.Record, forests []tree.Forest) (*Result, error) {
	const op = "shaper/Build"

	if forests != nil && len(forests) != len(records) {
		return nil, fmt.Errorf("%s: %d forests for %d records", op, len(forests), len(records))
	}

	res := &Result{Meta: meta, Columns: columns, Items: make([]Entry, 0, len(records))}
	for i, rec := range records {
		e := Entry{Record: rec}
		if meta.Shape.WithComments() && forests != nil {
			f := forests[i]
			e.TreeStatus = f.Status()
			if f.Err != nil {
				e.TreeError = f.Err.Error()
			}
			res.Pruned = append(res.Pruned, f.Pruned...)

			switch meta.Shape {
			case domain.ShapeNested:
				e.Comments = f.Nodes
				if e.Comments == nil && f.Err == nil {
					e.Comments = []domain.CommentNode{}
				}
			case domain.ShapeSplit:
				for _, n := range tree.Flatten(f.Nodes) {
					res.Comments = append(res.Comments, CommentRow{ItemID: rec.ID, CommentNode: n})
				}
			}
		}
		res.Items = append(res.Items, e)
	}
	return res, nil
}

// CommentsFor returns the split-shape rows owned by itemID.
func (r *Result) CommentsFor(itemID string) []CommentRow {
	var out []CommentRow
	for _, c := range r.Comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out
}

// PrunedBy counts pruned branches with the given reason.
func (r *Result) PrunedBy(reason tree.Reason) int {
	n := 0
	for _, p := range r.Pruned {
		if p.Reason == reason {
			n++
		}
	}
	return n
}

// MarshalJSON writes the record's fields followed by comments and tree status when present.
func (e Entry) MarshalJSON() ([]byte, error) {
	b, err := e.Record.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if e.TreeStatus == "" && e.Comments == nil {
		return b, nil
	}

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	sep := func() {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
	}
	if e.Comments != nil {
		c, err := json.Marshal(e.Comments)
		if err != nil {
			return nil, err
		}
		sep()
		buf.WriteString(`"comments":`)
		buf.Write(c)
	}
	if e.TreeStatus != "" {
		sep()
		buf.WriteString(`"tree_status":`)
		s, _ := json.Marshal(e.TreeStatus)
		buf.Write(s)
	}
	if e.TreeError != "" {
		sep()
		buf.WriteString(`"tree_error":`)
		s, _ := json.Marshal(e.TreeError)
		buf.Write(s)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Document is the structured-document form of a result.
type Document struct {
	RunID       string        `json:"run_id"`
	Source      domain.Source `json:"source"`
	Subject     string        `json:"subject"`
	Schema      string        `json:"schema"`
	Shape       domain.Shape  `json:"shape"`
	CollectedAt time.Time     `json:"collected_at"`
	Columns     []string      `json:"columns"`
	Items       []Entry       `json:"items"`
	Comments    []CommentRow  `json:"comments,omitempty"`
	Pruned      []tree.Pruned `json:"pruned,omitempty"`
}

// Document returns r in its serializable form.
func (r *Result) Document() Document {
	items := r.Items
	if items == nil {
		items = []Entry{}
	}
	return Document{
		RunID:       r.RunID,
		Source:      r.Source,
		Subject:     r.Subject,
		Schema:      r.Schema,
		Shape:       r.Shape,
		CollectedAt: r.CollectedAt,
		Columns:     r.Columns,
		Items:       items,
		Comments:    r.Comments,
		Pruned:      r.Pruned,
	}
}

// Sink receives finished results. Sinks own format, location and directory creation.
type Sink interface {
	Write(ctx context.Context, res *Result, dest string) error
}

// Emit hands res to sink when one is configured.
func Emit(ctx context.Context, sink Sink, res *Result, dest string) error {
	if sink == nil || dest == "" {
		return nil
	}
	if err := sink.Write(ctx, res, dest); err != nil {
		return fmt.Errorf("shaper/Emit: %w", err)
	}
	return nil
}
