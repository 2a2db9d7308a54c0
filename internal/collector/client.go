package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/qepting91/social-scraper/internal/domain"
)

// Reddit caps listing pages at 100 items.
const pageSize = 100

// defaultExpansions bounds "load more" calls when the caller sets no budget.
const defaultExpansions = 32

var forumSorts = map[domain.Sort]bool{
	domain.SortNewest:        true,
	domain.SortHottest:       true,
	domain.SortTop:           true,
	domain.SortRising:        true,
	domain.SortControversial: true,
}

// listingPath maps a sort to the reddit listing endpoint name.
func listingPath(s domain.Sort) (string, error) {
	switch s {
	case domain.SortNewest:
		return "new", nil
	case domain.SortHottest:
		return "hot", nil
	case domain.SortTop:
		return "top", nil
	case domain.SortRising:
		return "rising", nil
	case domain.SortControversial:
		return "controversial", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidSort, s)
}

// searchSort maps a sort to reddit's search ordering. Search has no rising or
// controversial order, so those fall back to relevance and comment count.
func searchSort(s domain.Sort) string {
	switch s {
	case domain.SortNewest:
		return "new"
	case domain.SortHottest:
		return "hot"
	case domain.SortTop:
		return "top"
	case domain.SortControversial:
		return "comments"
	}
	return "relevance"
}

// window returns the listing time filter, empty when the sort ignores it.
func window(q domain.PageQuery) string {
	if !q.Sort.UsesWindow() || q.Window == "" {
		return ""
	}
	return string(q.Window)
}

func budget(opts domain.ExpandOptions) int {
	if opts.MaxExpansions < 0 {
		return 0
	}
	if opts.MaxExpansions > 0 {
		return opts.MaxExpansions
	}
	return defaultExpansions
}

// classify maps a failed upstream call onto the error taxonomy.
func classify(op, subject string, status int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return domain.Errorf(domain.KindInvalidConfiguration, op, subject, err)
	case status == http.StatusNotFound, status == http.StatusForbidden:
		return domain.Errorf(domain.KindSubjectNotFound, op, subject, err)
	}
	return domain.Errorf(domain.KindUpstreamUnavailable, op, subject, err)
}

func truncate(items []domain.ContentItem, limit int) []domain.ContentItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var mediaHosts = []string{"i.redd.it", "v.redd.it", "i.imgur.com", "preview.redd.it"}

// mediaURLs returns url when it points at an image or video host.
func mediaURLs(url string) []string {
	lower := strings.ToLower(url)
	for _, h := range mediaHosts {
		if strings.Contains(lower, "://"+h+"/") {
			return []string{url}
		}
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".mp4", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return []string{url}
		}
	}
	return nil
}

// postID accepts a bare id, a t3_ fullname or a /comments/<id>/ URL.
func postID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/comments/"); i >= 0 {
		s = s[i+len("/comments/"):]
		if j := strings.IndexAny(s, "/?#"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimPrefix(s, "t3_")
}
