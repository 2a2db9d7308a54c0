package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const nitterDateLayout = "Jan 2, 2006 · 3:04 PM MST"

// NitterClient reads the microblog through a Nitter instance's HTML pages.
type NitterClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	baseURL    string
	now        func() time.Time
}

func NewNitterClient(baseURL, userAgent string) (*NitterClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("nitter url: %w", err)
	}
	return &NitterClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		userAgent:  userAgent,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}, nil
}

func (nc *NitterClient) Source() domain.Source { return domain.SourceMicroblog }

// SupportsSort reports newest (the timeline order) and top, which narrows the
// search to the time window and keeps the upstream order.
func (nc *NitterClient) SupportsSort(s domain.Sort) bool {
	return s == domain.SortNewest || s == domain.SortTop
}

// SearchQuery builds the search string with its filter modifiers.
func (nc *NitterClient) SearchQuery(q domain.PageQuery) string {
	var parts []string
	if q.Timeline {
		parts = append(parts, "from:"+strings.TrimPrefix(q.Subject, "@"))
		if q.Query != "" {
			parts = append(parts, q.Query)
		}
	} else if q.Query != "" {
		parts = append(parts, q.Query)
	} else {
		parts = append(parts, q.Subject)
	}

	since := q.Since
	if q.Sort.UsesWindow() {
		if ws := q.Window.Since(nc.now().UTC()); !ws.IsZero() && ws.After(since) {
			since = ws
		}
	}
	if !since.IsZero() {
		parts = append(parts, "since:"+since.Format(time.DateOnly))
	}
	if !q.Until.IsZero() {
		parts = append(parts, "until:"+q.Until.Format(time.DateOnly))
	}
	if q.Language != "" {
		parts = append(parts, "lang:"+q.Language)
	}
	if q.ExcludeReposts {
		parts = append(parts, "-filter:retweets")
	}
	if !q.IncludeReplies {
		parts = append(parts, "-filter:replies")
	}
	return strings.Join(parts, " ")
}

func (nc *NitterClient) FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.ContentItem, error) {
	const op = "collector/NitterClient.FetchPage"

	if !nc.SupportsSort(q.Sort) {
		return nil, classify(op, q.Subject, 0, fmt.Errorf("%w: %q on microblog", domain.ErrInvalidSort, q.Sort))
	}

	params := url.Values{"f": {"tweets"}, "q": {nc.SearchQuery(q)}}
	next := "/search?" + params.Encode()

	var items []domain.ContentItem
	for next != "" && len(items) < q.Limit {
		doc, status, err := nc.getHTML(ctx, next)
		if err != nil {
			return nil, classify(op, q.Subject, status, err)
		}
		if _, ok := scrape.Find(doc, scrape.ByClass("error-panel")); ok && len(items) == 0 {
			return nil, domain.Errorf(domain.KindSubjectNotFound, op, q.Subject, fmt.Errorf("no results page"))
		}

		page := nc.timelineItems(doc)
		for _, n := range page {
			it, ok := nc.parseItem(n)
			if !ok {
				continue
			}
			if q.Language != "" {
				it.Language = q.Language
			}
			items = append(items, it)
		}
		if len(page) == 0 {
			break
		}
		next = nc.cursor(doc, "/search")
	}
	return truncate(items, q.Limit), nil
}

// FetchItem reads one post by id or /status/<id> URL.
func (nc *NitterClient) FetchItem(ctx context.Context, id string) (domain.ContentItem, error) {
	const op = "collector/NitterClient.FetchItem"

	id = statusID(id)
	doc, status, err := nc.getHTML(ctx, "/i/status/"+url.PathEscape(id))
	if err != nil {
		return domain.ContentItem{}, classify(op, id, status, err)
	}
	main, ok := scrape.Find(doc, scrape.ByClass("main-tweet"))
	if !ok {
		return domain.ContentItem{}, domain.Errorf(domain.KindSubjectNotFound, op, id, fmt.Errorf("status %s not found", id))
	}
	it, ok := nc.parseItem(main)
	if !ok {
		return domain.ContentItem{}, domain.Errorf(domain.KindSubjectNotFound, op, id, fmt.Errorf("status %s unreadable", id))
	}
	return it, nil
}

// FetchReplies reads the reply threads under a post. Each thread on the page is
// a chain where every entry answers the one above it; further pages of threads
// are followed while the expansion budget lasts.
func (nc *NitterClient) FetchReplies(ctx context.Context, itemID string, opts domain.ExpandOptions) ([]domain.Reply, error) {
	const op = "collector/NitterClient.FetchReplies"

	itemID = statusID(itemID)
	path := "/i/status/" + url.PathEscape(itemID)
	doc, status, err := nc.getHTML(ctx, path)
	if err != nil {
		return nil, classify(op, itemID, status, err)
	}

	replies := nc.threads(doc, itemID)
	left := budget(opts)
	next := nc.cursor(doc, path)
	for ; next != "" && left > 0; left-- {
		page, _, err := nc.getHTML(ctx, next)
		if err != nil {
			replies = append(replies, domain.Reply{ID: "more:" + itemID, ParentID: itemID, Unavailable: true, Err: err})
			next = ""
			break
		}
		replies = append(replies, nc.threads(page, itemID)...)
		next = nc.cursor(page, path)
	}
	if next != "" {
		// The page count behind the cursor is unknown.
		replies = append(replies, domain.Reply{ID: "more:" + itemID, ParentID: itemID, Collapsed: 1, More: true})
	}
	return replies, nil
}

func (nc *NitterClient) threads(doc *html.Node, itemID string) []domain.Reply {
	box, ok := scrape.Find(doc, scrape.ByClass("replies"))
	if !ok {
		return nil
	}

	var out []domain.Reply
	for _, thread := range scrape.FindAll(box, scrape.ByClass("reply")) {
		var chain []domain.Reply
		for _, n := range nc.timelineItems(thread) {
			if hasClass(n, "unavailable") {
				chain = append(chain, domain.Reply{Unavailable: true, Err: fmt.Errorf("reply unavailable")})
				break
			}
			it, ok := nc.parseItem(n)
			if !ok {
				continue
			}
			chain = append(chain, domain.Reply{
				ID:        it.ID,
				Author:    it.Author,
				Body:      it.Body,
				Score:     it.Score,
				CreatedAt: it.CreatedAt,
				Permalink: it.Permalink,
			})
		}
		if _, more := scrape.Find(thread, scrape.ByClass("more-replies")); more && len(chain) > 0 {
			chain[len(chain)-1].Collapsed = 1
		}
		if r, ok := linkChain(chain, itemID); ok {
			out = append(out, r)
		}
	}
	return out
}

// linkChain nests a thread so each reply is the child of the previous one.
func linkChain(chain []domain.Reply, parentID string) (domain.Reply, bool) {
	if len(chain) == 0 {
		return domain.Reply{}, false
	}
	head := chain[0]
	head.ParentID = parentID
	if child, ok := linkChain(chain[1:], head.ID); ok {
		head.Children = []domain.Reply{child}
	}
	return head, true
}

func (nc *NitterClient) timelineItems(root *html.Node) []*html.Node {
	var out []*html.Node
	for _, n := range scrape.FindAll(root, scrape.ByClass("timeline-item")) {
		if hasClass(n, "show-more") {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (nc *NitterClient) parseItem(n *html.Node) (domain.ContentItem, bool) {
	link, ok := scrape.Find(n, scrape.ByClass("tweet-link"))
	if !ok {
		if link, ok = scrape.Find(n, statusAnchor); !ok {
			return domain.ContentItem{}, false
		}
	}
	href := scrape.Attr(link, "href")
	id := statusID(href)
	if id == "" {
		return domain.ContentItem{}, false
	}

	it := domain.ContentItem{ID: id}
	if u, ok := scrape.Find(n, scrape.ByClass("username")); ok {
		it.Author = strings.TrimPrefix(strings.TrimSpace(scrape.Text(u)), "@")
	}
	if it.Author == "" {
		it.Author = strings.Trim(strings.SplitN(strings.TrimPrefix(href, "/"), "/", 2)[0], "@ ")
	}
	it.Author = domain.AuthorOrDeleted(it.Author)
	if f, ok := scrape.Find(n, scrape.ByClass("fullname")); ok {
		it.DisplayName = strings.TrimSpace(scrape.Text(f))
	}
	if it.DisplayName == "" {
		it.DisplayName = it.Author
	}
	if c, ok := scrape.Find(n, scrape.ByClass("tweet-content")); ok {
		it.Body = strings.TrimSpace(scrape.Text(c))
	}
	if d, ok := scrape.Find(n, scrape.ByClass("tweet-date")); ok {
		if t, err := time.Parse(nitterDateLayout, dateTitle(d)); err == nil {
			it.CreatedAt = t.UTC()
		}
	}
	for _, stat := range scrape.FindAll(n, scrape.ByClass("tweet-stat")) {
		v := parseCount(scrape.Text(stat))
		switch {
		case containsClass(stat, "icon-heart"):
			it.Score = v
		case containsClass(stat, "icon-retweet"):
			it.Secondary = v
		case containsClass(stat, "icon-comment"):
			it.Replies = v
		}
	}
	for _, m := range scrape.FindAll(n, scrape.ByClass("still-image")) {
		if src := scrape.Attr(m, "href"); src != "" {
			it.MediaURLs = append(it.MediaURLs, nc.baseURL+src)
		}
	}
	it.Permalink = fmt.Sprintf("https://twitter.com/%s/status/%s", it.Author, id)
	it.URL = it.Permalink
	return it, true
}

// cursor returns the next page path from the "show more" link, if any.
func (nc *NitterClient) cursor(doc *html.Node, path string) string {
	var next string
	for _, sm := range scrape.FindAll(doc, scrape.ByClass("show-more")) {
		a, ok := scrape.Find(sm, anchor)
		if !ok {
			continue
		}
		href := scrape.Attr(a, "href")
		if !strings.Contains(href, "cursor=") {
			continue
		}
		if strings.HasPrefix(href, "?") {
			href = path + href
		}
		next = href
	}
	return next
}

func (nc *NitterClient) getHTML(ctx context.Context, path string) (*html.Node, int, error) {
	if err := nc.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nc.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if nc.userAgent != "" {
		req.Header.Set("User-Agent", nc.userAgent)
	}

	resp, err := nc.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("nitter status: %d", resp.StatusCode)
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return doc, resp.StatusCode, nil
}

func anchor(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "a"
}

func statusAnchor(n *html.Node) bool {
	return anchor(n) && strings.Contains(scrape.Attr(n, "href"), "/status/")
}

func dateTitle(d *html.Node) string {
	if a, ok := scrape.Find(d, anchor); ok {
		if t := scrape.Attr(a, "title"); t != "" {
			return t
		}
	}
	return scrape.Attr(d, "title")
}

func hasClass(n *html.Node, class string) bool {
	return scrape.ByClass(class)(n)
}

func containsClass(n *html.Node, class string) bool {
	_, ok := scrape.Find(n, scrape.ByClass(class))
	return ok
}

func parseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, _ := strconv.Atoi(s)
	return v
}

// statusID extracts the id from ".../status/<id>#m", or returns s unchanged.
func statusID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/status/"); i >= 0 {
		s = s[i+len("/status/"):]
	}
	if j := strings.IndexAny(s, "/?#"); j >= 0 {
		s = s[:j]
	}
	return s
}
