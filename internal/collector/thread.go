package collector

import (
	"encoding/json"

	"github.com/qepting91/social-scraper/internal/domain"
)

type threadNode struct {
	reply    domain.Reply
	children []*threadNode
}

type pendingMore struct {
	parent *threadNode // nil at the top level
	more   redditMore
}

// threadTree rebuilds a comment tree from nested listings and from the flat
// lists /api/morechildren returns, linking by parent fullname.
type threadTree struct {
	roots   []*threadNode
	byName  map[string]*threadNode
	pending []pendingMore
}

func newThreadTree() *threadTree {
	return &threadTree{byName: make(map[string]*threadNode)}
}

// attach adds a nested listing under parent.
func (t *threadTree) attach(parent *threadNode, things []redditThing) {
	for _, th := range things {
		switch th.Kind {
		case "t1":
			var c redditComment
			if err := json.Unmarshal(th.Data, &c); err != nil {
				continue
			}
			n := t.add(parent, c)
			if replies := nestedReplies(c.Replies); len(replies) > 0 {
				t.attach(n, replies)
			}
		case "more":
			var m redditMore
			if err := json.Unmarshal(th.Data, &m); err != nil {
				continue
			}
			t.pending = append(t.pending, pendingMore{parent: parent, more: m})
		}
	}
}

// attachFlat adds things that carry their parent only as parent_id.
func (t *threadTree) attachFlat(things []redditThing) {
	for _, th := range things {
		switch th.Kind {
		case "t1":
			var c redditComment
			if err := json.Unmarshal(th.Data, &c); err != nil {
				continue
			}
			t.add(t.byName[c.ParentID], c)
		case "more":
			var m redditMore
			if err := json.Unmarshal(th.Data, &m); err != nil {
				continue
			}
			t.pending = append(t.pending, pendingMore{parent: t.byName[m.ParentID], more: m})
		}
	}
}

func (t *threadTree) add(parent *threadNode, c redditComment) *threadNode {
	n := &threadNode{reply: domain.Reply{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Author:    c.Author,
		Body:      c.Body,
		Score:     c.Score,
		Permalink: c.Permalink,
	}}
	if c.CreatedUTC > 0 {
		n.reply.CreatedAt = epoch(c.CreatedUTC)
	}
	t.link(parent, n)
	t.byName["t1_"+c.ID] = n
	return n
}

func (t *threadTree) link(parent, n *threadNode) {
	if parent == nil {
		t.roots = append(t.roots, n)
		return
	}
	parent.children = append(parent.children, n)
}

// collapse records a placeholder that will not be expanded. Top-level
// placeholders stay in the tree as More replies.
func (t *threadTree) collapse(p pendingMore) {
	n := max(p.more.Count, len(p.more.Children))
	if n == 0 {
		// "continue this thread" links carry no count.
		n = 1
	}
	if p.parent == nil {
		t.link(nil, &threadNode{reply: domain.Reply{
			ID:        p.more.ID,
			ParentID:  p.more.ParentID,
			Collapsed: n,
			More:      true,
		}})
		return
	}
	p.parent.reply.Collapsed += n
}

// fail records a placeholder whose expansion errored as an unavailable subtree.
func (t *threadTree) fail(p pendingMore, err error) {
	t.link(p.parent, &threadNode{reply: domain.Reply{
		ID:          p.more.ID,
		ParentID:    p.more.ParentID,
		Unavailable: true,
		Err:         err,
	}})
}

func (t *threadTree) replies() []domain.Reply {
	return convertNodes(t.roots)
}

func convertNodes(ns []*threadNode) []domain.Reply {
	if len(ns) == 0 {
		return nil
	}
	out := make([]domain.Reply, 0, len(ns))
	for _, n := range ns {
		r := n.reply
		r.Children = convertNodes(n.children)
		out = append(out, r)
	}
	return out
}

// nestedReplies decodes a comment's replies field, which is "" when empty.
func nestedReplies(raw json.RawMessage) []redditThing {
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var l redditListing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return l.Data.Children
}
