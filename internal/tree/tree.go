// Package tree materializes reply trees with a depth bound.
package tree

import (
	"context"
	"log/slog"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/projector"
	"github.com/qepting91/social-scraper/internal/retry"
)

// Reason says why a branch is missing from a forest.
type Reason string

const (
	ReasonDepth     Reason = "depth"
	ReasonError     Reason = "error"
	ReasonCollapsed Reason = "collapsed"
)

// Pruned describes one branch left out of a forest.
type Pruned struct {
	ItemID string `json:"item_id"`
	NodeID string `json:"node_id,omitempty"`
	Depth  int    `json:"depth"`
	Reason Reason `json:"reason"`
	Count  int    `json:"count,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Status values of a forest.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Forest is the reply tree of one item.
type Forest struct {
	ItemID string
	Nodes  []domain.CommentNode
	Pruned []Pruned
	// Err is set when no replies could be read at all.
	Err error
}

// Status tells apart an item with no replies from one whose replies failed
// or were left unexpanded.
func (f Forest) Status() string {
	switch {
	case f.Err != nil:
		return StatusFailed
	case f.has(ReasonError):
		return StatusPartial
	case len(f.Nodes) == 0 && f.has(ReasonCollapsed):
		return StatusPartial
	case len(f.Nodes) == 0:
		return StatusEmpty
	}
	return StatusOK
}

func (f Forest) has(reason Reason) bool {
	for _, p := range f.Pruned {
		if p.Reason == reason {
			return true
		}
	}
	return false
}

// Size counts every node in the forest.
func (f Forest) Size() int {
	return countNodes(f.Nodes)
}

func countNodes(ns []domain.CommentNode) int {
	n := len(ns)
	for _, c := range ns {
		n += countNodes(c.Children)
	}
	return n
}

// Extractor reads and bounds reply trees.
type Extractor struct {
	Fetcher  domain.ReplyFetcher
	MaxDepth int
	Expand   domain.ExpandOptions
	Retry    *retry.Retrier
	// BaseURL makes relative permalinks absolute.
	BaseURL string
	Logger  *slog.Logger
}

// Extract fetches the replies of itemID, expanding collapsed placeholders first,
// and walks them depth first. It never fails: fetch errors end up in Forest.Err
// and unreadable subtrees in Forest.Pruned.
func (e *Extractor) Extract(ctx context.Context, itemID string) Forest {
	const op = "tree/Extract"

	lg := e.logger().With(slog.String("op", op), slog.String("item_id", itemID))
	f := Forest{ItemID: itemID}

	replies, err := retry.Value(e.Retry, func() ([]domain.Reply, error) {
		return e.Fetcher.FetchReplies(ctx, itemID, e.Expand)
	})
	if err != nil {
		lg.Warn("reply tree unavailable", slog.String("err", err.Error()))
		f.Err = domain.Errorf(domain.KindPartialTree, op, itemID, err)
		return f
	}

	for _, r := range replies {
		if n, ok := e.visit(&f, r, 0); ok {
			f.Nodes = append(f.Nodes, n)
		}
	}
	if len(f.Pruned) > 0 {
		lg.Debug("reply tree pruned", slog.Int("pruned", len(f.Pruned)), slog.Int("nodes", f.Size()))
	}
	return f
}

func (e *Extractor) visit(f *Forest, r domain.Reply, depth int) (domain.CommentNode, bool) {
	if r.More {
		if depth <= e.MaxDepth {
			f.Pruned = append(f.Pruned, Pruned{ItemID: f.ItemID, NodeID: r.ID, Depth: depth, Reason: ReasonCollapsed, Count: max(r.Collapsed, 1)})
		}
		return domain.CommentNode{}, false
	}
	if depth > e.MaxDepth {
		f.Pruned = append(f.Pruned, Pruned{ItemID: f.ItemID, NodeID: r.ID, Depth: depth, Reason: ReasonDepth})
		return domain.CommentNode{}, false
	}
	if r.Unavailable || r.Err != nil {
		p := Pruned{ItemID: f.ItemID, NodeID: r.ID, Depth: depth, Reason: ReasonError}
		if r.Err != nil {
			p.Err = r.Err.Error()
		}
		f.Pruned = append(f.Pruned, p)
		e.logger().Warn("reply subtree skipped",
			slog.String("item_id", f.ItemID),
			slog.String("node_id", r.ID),
			slog.Int("depth", depth),
		)
		return domain.CommentNode{}, false
	}

	n := domain.CommentNode{
		ID:        r.ID,
		ParentID:  r.ParentID,
		Author:    domain.AuthorOrDeleted(r.Author),
		Body:      r.Body,
		Score:     r.Score,
		Permalink: projector.AbsoluteURL(e.BaseURL, r.Permalink),
		Depth:     depth,
	}
	if !r.CreatedAt.IsZero() {
		n.CreatedAt = r.CreatedAt.Unix()
		n.CreatedDate = r.CreatedAt.UTC().Format(projector.DateLayout)
	}
	if r.Collapsed > 0 && depth+1 <= e.MaxDepth {
		f.Pruned = append(f.Pruned, Pruned{ItemID: f.ItemID, NodeID: r.ID, Depth: depth + 1, Reason: ReasonCollapsed, Count: r.Collapsed})
	}
	for _, c := range r.Children {
		if child, ok := e.visit(f, c, depth+1); ok {
			n.Children = append(n.Children, child)
		}
	}
	return n, true
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Flatten lists the nodes of ns depth first, parents before children.
func Flatten(ns []domain.CommentNode) []domain.CommentNode {
	var out []domain.CommentNode
	var walk func([]domain.CommentNode)
	walk = func(level []domain.CommentNode) {
		for _, n := range level {
			children := n.Children
			n.Children = nil
			out = append(out, n)
			walk(children)
		}
	}
	walk(ns)
	return out
}

// MaxDepth returns the deepest node depth in ns, or -1 when ns is empty.
func MaxDepth(ns []domain.CommentNode) int {
	deepest := -1
	for _, n := range ns {
		if n.Depth > deepest {
			deepest = n.Depth
		}
		if d := MaxDepth(n.Children); d > deepest {
			deepest = d
		}
	}
	return deepest
}
