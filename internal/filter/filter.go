// Package filter drops items that do not match a request's inclusion rules.
package filter

import (
	"strings"

	"github.com/qepting91/social-scraper/internal/domain"
)

// Predicate reports whether an item stays in the result.
type Predicate func(domain.ContentItem) bool

// Chain builds the predicates for f in their fixed evaluation order:
// flagged exclusion, engagement thresholds, language.
func Chain(f domain.Filters) []Predicate {
	var ps []Predicate
	if f.ExcludeFlagged {
		ps = append(ps, func(it domain.ContentItem) bool { return !it.Flagged })
	}
	if f.MinScore != 0 || f.MinSecondary != 0 {
		ps = append(ps, func(it domain.ContentItem) bool {
			return it.Score >= f.MinScore && it.Secondary >= f.MinSecondary
		})
	}
	if lang := strings.TrimSpace(f.Language); lang != "" {
		ps = append(ps, func(it domain.ContentItem) bool {
			return it.Language != "" && strings.EqualFold(it.Language, lang)
		})
	}
	return ps
}

// Keep reports whether it passes every predicate, stopping at the first reject.
func Keep(it domain.ContentItem, ps []Predicate) bool {
	for _, p := range ps {
		if !p(it) {
			return false
		}
	}
	return true
}

// Apply returns the items of in that pass f, in their original order.
func Apply(in []domain.ContentItem, f domain.Filters) []domain.ContentItem {
	ps := Chain(f)
	out := make([]domain.ContentItem, 0, len(in))
	for _, it := range in {
		if Keep(it, ps) {
			out = append(out, it)
		}
	}
	return out
}
