package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DeletedAuthor stands in for an author the upstream no longer reports.
const DeletedAuthor = "[deleted]"

// Source identifies an upstream.
type Source string

const (
	SourceForum     Source = "forum"
	SourceMicroblog Source = "microblog"
)

func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceForum, "reddit":
		return SourceForum, nil
	case SourceMicroblog, "twitter":
		return SourceMicroblog, nil
	}
	return "", fmt.Errorf("%w: unknown source %q", ErrInvalidConfiguration, s)
}

// Sort is the ordering asked of the upstream.
type Sort string

const (
	SortNewest        Sort = "newest"
	SortHottest       Sort = "hottest"
	SortTop           Sort = "top"
	SortRising        Sort = "rising"
	SortControversial Sort = "controversial"
)

// ParseSort accepts the canonical names and the upstream aliases new/hot.
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "newest", "new":
		return SortNewest, nil
	case "hottest", "hot":
		return SortHottest, nil
	case "top":
		return SortTop, nil
	case "rising":
		return SortRising, nil
	case "controversial":
		return SortControversial, nil
	}
	return "", fmt.Errorf("%w: %q (use newest, hottest, top, rising or controversial)", ErrInvalidSort, s)
}

// UsesWindow reports whether the time window changes what the sort returns.
func (s Sort) UsesWindow() bool {
	return s == SortTop || s == SortControversial
}

// TimeWindow bounds top and controversial listings.
type TimeWindow string

const (
	WindowAll   TimeWindow = "all"
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
	WindowYear  TimeWindow = "year"
)

func ParseTimeWindow(s string) (TimeWindow, error) {
	switch w := TimeWindow(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowDay, WindowWeek, WindowMonth, WindowYear:
		return w, nil
	}
	return "", fmt.Errorf("%w: unknown time window %q", ErrInvalidConfiguration, s)
}

// Since returns the earliest instant inside the window, or the zero time for "all".
func (w TimeWindow) Since(now time.Time) time.Time {
	switch w {
	case WindowDay:
		return now.AddDate(0, 0, -1)
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	case WindowYear:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

// Shape selects the output representation.
type Shape string

const (
	ShapeFlat   Shape = "flat"
	ShapeNested Shape = "nested"
	ShapeSplit  Shape = "split"
)

func ParseShape(s string) (Shape, error) {
	switch sh := Shape(strings.ToLower(strings.TrimSpace(s))); sh {
	case "":
		return ShapeFlat, nil
	case ShapeFlat, ShapeNested, ShapeSplit:
		return sh, nil
	}
	return "", fmt.Errorf("%w: unknown output shape %q", ErrInvalidConfiguration, s)
}

// WithComments reports whether the shape carries reply trees.
func (s Shape) WithComments() bool {
	return s == ShapeNested || s == ShapeSplit
}

// Filters are applied to every fetched item before projection.
type Filters struct {
	MinScore       int
	MinSecondary   int
	ExcludeFlagged bool
	Language       string
}

// CollectionRequest is one collection run's configuration.
type CollectionRequest struct {
	Source   Source
	Subject  string
	Limit    int
	Sort     Sort
	Window   TimeWindow
	Query    string
	Filters  Filters
	Fields   []string
	Shape    Shape
	MaxDepth int

	// Microblog options.
	Timeline       bool
	IncludeReplies bool
	ExcludeReposts bool
	Since          time.Time
	Until          time.Time
}

// ContentItem is a normalized top-level record from any upstream.
type ContentItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	DisplayName string    `json:"display_name,omitempty"`
	Score       int       `json:"score"`
	Secondary   int       `json:"secondary_count"`
	Replies     int       `json:"reply_count"`
	CreatedAt   time.Time `json:"created_at"`
	Permalink   string    `json:"permalink"`
	URL         string    `json:"url"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
	Flagged     bool      `json:"flagged"`
	Language    string    `json:"language,omitempty"`
	Community   string    `json:"community,omitempty"`
}

// Reply is an adapter-normalized reply handed to the tree extractor.
type Reply struct {
	ID        string
	ParentID  string
	Author    string
	Body      string
	Score     int
	CreatedAt time.Time
	Permalink string
	Children  []Reply

	// Unavailable marks a removed subtree; Err carries why it could not be read.
	Unavailable bool
	Err         error
	// Collapsed counts placeholder replies under this node left unexpanded.
	Collapsed int
	// More marks a placeholder standing in for Collapsed unexpanded replies at
	// this position. It is recorded as collapsed and never becomes a node.
	More bool
}

// AuthorOrDeleted applies the sentinel rule.
func AuthorOrDeleted(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return DeletedAuthor
	}
	return author
}

// PageQuery is what the pipeline asks an adapter for.
type PageQuery struct {
	Subject string
	Sort    Sort
	Window  TimeWindow
	Query   string
	Limit   int

	Timeline       bool
	IncludeReplies bool
	ExcludeReposts bool
	Language       string
	Since          time.Time
	Until          time.Time
}

// ExpandOptions bounds "load more" expansion of a reply tree.
type ExpandOptions struct {
	// MaxExpansions caps placeholder expansion calls. 0 means the adapter's
	// ceiling and a negative value disables expansion.
	MaxExpansions int
}

// Adapter fetches pages of items from one upstream.
type Adapter interface {
	Source() Source
	SupportsSort(Sort) bool
	FetchPage(ctx context.Context, q PageQuery) ([]ContentItem, error)
}

// ReplyFetcher is implemented by adapters that can read reply trees.
type ReplyFetcher interface {
	FetchReplies(ctx context.Context, itemID string, opts ExpandOptions) ([]Reply, error)
}

// ItemFetcher is implemented by adapters that can read a single item.
type ItemFetcher interface {
	FetchItem(ctx context.Context, id string) (ContentItem, error)
}

// CommentNode is one materialized reply. Depth 0 is a direct reply to the item.
type CommentNode struct {
	ID          string        `json:"id"`
	ParentID    string        `json:"parent_id,omitempty"`
	Author      string        `json:"author"`
	Body        string        `json:"body"`
	Score       int           `json:"score"`
	CreatedAt   int64         `json:"created_at"`
	CreatedDate string        `json:"created_date,omitempty"`
	Permalink   string        `json:"permalink,omitempty"`
	Depth       int           `json:"depth"`
	Children    []CommentNode `json:"replies,omitempty"`
}
