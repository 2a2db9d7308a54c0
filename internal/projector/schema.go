// Package projector selects and derives the requested fields of each item
// through an explicit schema per source.
package projector

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
)

// DateLayout is the human-readable companion of created_at.
const DateLayout = "2006-01-02 15:04:05"

const (
	FieldCreatedAt   = "created_at"
	FieldCreatedDate = "created_date"
)

// DefaultFields is used when a request names no fields.
var DefaultFields = []string{"id", "title", "score", "url", "author", FieldCreatedAt, "secondary_count", "body"}

type accessor func(it domain.ContentItem, s *Schema) any

// Schema is the versioned field set one source can project.
type Schema struct {
	Name    string
	Version int
	BaseURL string
	fields  map[string]accessor
}

var common = map[string]accessor{
	"id":              func(it domain.ContentItem, _ *Schema) any { return it.ID },
	"body":            func(it domain.ContentItem, _ *Schema) any { return it.Body },
	"author":          func(it domain.ContentItem, _ *Schema) any { return domain.AuthorOrDeleted(it.Author) },
	"score":           func(it domain.ContentItem, _ *Schema) any { return it.Score },
	"secondary_count": func(it domain.ContentItem, _ *Schema) any { return it.Secondary },
	"reply_count":     func(it domain.ContentItem, _ *Schema) any { return it.Replies },
	"flagged":         func(it domain.ContentItem, _ *Schema) any { return it.Flagged },
	FieldCreatedAt: func(it domain.ContentItem, _ *Schema) any {
		if it.CreatedAt.IsZero() {
			return nil
		}
		return it.CreatedAt.Unix()
	},
	FieldCreatedDate: func(it domain.ContentItem, _ *Schema) any { return FormatDate(it.CreatedAt) },
	"permalink":      func(it domain.ContentItem, s *Schema) any { return AbsoluteURL(s.BaseURL, it.Permalink) },
	"url": func(it domain.ContentItem, s *Schema) any {
		if it.URL == "" {
			return AbsoluteURL(s.BaseURL, it.Permalink)
		}
		return AbsoluteURL(s.BaseURL, it.URL)
	},
	"media_urls": func(it domain.ContentItem, _ *Schema) any {
		if len(it.MediaURLs) == 0 {
			return nil
		}
		return append([]string(nil), it.MediaURLs...)
	},
}

// Forum is the schema of the threaded forum source.
var Forum = newSchema("forum", 1, "https://www.reddit.com", map[string]accessor{
	"title":        func(it domain.ContentItem, _ *Schema) any { return it.Title },
	"selftext":     func(it domain.ContentItem, _ *Schema) any { return it.Body },
	"num_comments": func(it domain.ContentItem, _ *Schema) any { return it.Secondary },
	"nsfw":         func(it domain.ContentItem, _ *Schema) any { return it.Flagged },
	"subreddit": func(it domain.ContentItem, _ *Schema) any {
		if it.Community == "" {
			return nil
		}
		return it.Community
	},
})

// Microblog is the schema of the microblog source. Posts have no title.
var Microblog = newSchema("microblog", 1, "https://twitter.com", map[string]accessor{
	"content":       func(it domain.ContentItem, _ *Schema) any { return it.Body },
	"user":          func(it domain.ContentItem, _ *Schema) any { return domain.AuthorOrDeleted(it.Author) },
	"display_name":  func(it domain.ContentItem, _ *Schema) any { return it.DisplayName },
	"like_count":    func(it domain.ContentItem, _ *Schema) any { return it.Score },
	"retweet_count": func(it domain.ContentItem, _ *Schema) any { return it.Secondary },
	"language": func(it domain.ContentItem, _ *Schema) any {
		if it.Language == "" {
			return nil
		}
		return it.Language
	},
})

func newSchema(name string, version int, base string, extra map[string]accessor) *Schema {
	s := &Schema{Name: name, Version: version, BaseURL: base, fields: make(map[string]accessor, len(common)+len(extra))}
	for k, v := range common {
		s.fields[k] = v
	}
	for k, v := range extra {
		s.fields[k] = v
	}
	return s
}

// ForSource returns the schema for src.
func ForSource(src domain.Source) *Schema {
	if src == domain.SourceMicroblog {
		return Microblog
	}
	return Forum
}

// ID is the schema's version tag, e.g. "forum/v1".
func (s *Schema) ID() string {
	return s.Name + "/v" + strconv.Itoa(s.Version)
}

// Has reports whether the schema defines name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Columns resolves requested field names to output columns: defaults when empty,
// duplicates removed, created_date inserted after created_at.
func (s *Schema) Columns(fields []string) []string {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	seen := make(map[string]bool, len(fields)+1)
	cols := make([]string, 0, len(fields)+1)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		add(f)
		if f == FieldCreatedAt {
			add(FieldCreatedDate)
		}
	}
	return cols
}

// Project builds the record of it for the resolved columns. Columns the schema
// does not define project to nil.
func (s *Schema) Project(it domain.ContentItem, columns []string) Record {
	rec := Record{ID: it.ID, Columns: columns, Values: make([]any, len(columns))}
	for i, c := range columns {
		if get, ok := s.fields[c]; ok {
			rec.Values[i] = get(it, s)
		}
	}
	return rec
}

// FormatDate renders t in DateLayout (UTC), or nil for the zero time.
func FormatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(DateLayout)
}

// AbsoluteURL resolves link against base. Empty links stay empty.
func AbsoluteURL(base, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if u.IsAbs() {
		return link
	}
	b, err := url.Parse(base)
	if err != nil {
		return link
	}
	return b.ResolveReference(u).String()
}
