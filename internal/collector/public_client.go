package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
	"golang.org/x/time/rate"
)

// PublicClient reads the forum through its unauthenticated JSON endpoints.
type PublicClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	baseURL    string
}

type redditListing struct {
	Data struct {
		After    string        `json:"after"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Over18      bool    `json:"over_18"`
}

type redditComment struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Permalink  string          `json:"permalink"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

type redditMore struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type moreChildrenResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []redditThing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// PublicOption configures a PublicClient.
type PublicOption func(*PublicClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) PublicOption {
	return func(pc *PublicClient) { pc.baseURL = strings.TrimRight(u, "/") }
}

// WithLimiter replaces the default request limiter.
func WithLimiter(l *rate.Limiter) PublicOption {
	return func(pc *PublicClient) { pc.limiter = l }
}

func NewPublicClient(userAgent string, opts ...PublicOption) (*PublicClient, error) {
	pc := &PublicClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Public JSON Limit: 1 req / 2 seconds (Stricter)
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
		userAgent: userAgent,
		baseURL:   "https://www.reddit.com",
	}
	for _, o := range opts {
		o(pc)
	}
	return pc, nil
}

func (pc *PublicClient) Source() domain.Source { return domain.SourceForum }

func (pc *PublicClient) SupportsSort(s domain.Sort) bool { return forumSorts[s] }

func (pc *PublicClient) FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.ContentItem, error) {
	const op = "collector/PublicClient.FetchPage"

	endpoint, params, err := pc.listingURL(q)
	if err != nil {
		return nil, classify(op, q.Subject, 0, err)
	}

	var (
		posts []domain.ContentItem
		after string
	)
	for len(posts) < q.Limit {
		params.Set("limit", strconv.Itoa(min(q.Limit-len(posts), pageSize)))
		if after != "" {
			params.Set("after", after)
		}

		var listing redditListing
		if status, err := pc.getJSON(ctx, endpoint+"?"+params.Encode(), &listing); err != nil {
			return nil, classify(op, q.Subject, status, err)
		}
		for _, child := range listing.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			var d redditPost
			if err := json.Unmarshal(child.Data, &d); err != nil {
				continue
			}
			posts = append(posts, d.item())
		}
		if listing.Data.After == "" || len(listing.Data.Children) == 0 {
			break
		}
		after = listing.Data.After
	}
	return truncate(posts, q.Limit), nil
}

func (pc *PublicClient) listingURL(q domain.PageQuery) (string, url.Values, error) {
	params := url.Values{"raw_json": {"1"}}
	sub := url.PathEscape(q.Subject)
	if q.Query != "" {
		params.Set("q", q.Query)
		params.Set("restrict_sr", "1")
		params.Set("sort", searchSort(q.Sort))
		if t := window(q); t != "" {
			params.Set("t", t)
		}
		return fmt.Sprintf("%s/r/%s/search.json", pc.baseURL, sub), params, nil
	}

	path, err := listingPath(q.Sort)
	if err != nil {
		return "", nil, err
	}
	if t := window(q); t != "" {
		params.Set("t", t)
	}
	return fmt.Sprintf("%s/r/%s/%s.json", pc.baseURL, sub, path), params, nil
}

func (pc *PublicClient) FetchItem(ctx context.Context, id string) (domain.ContentItem, error) {
	const op = "collector/PublicClient.FetchItem"

	id = postID(id)
	post, _, status, err := pc.thread(ctx, id)
	if err != nil {
		return domain.ContentItem{}, classify(op, id, status, err)
	}
	if post == nil {
		return domain.ContentItem{}, domain.Errorf(domain.KindSubjectNotFound, op, id, fmt.Errorf("post %s not found", id))
	}
	return post.item(), nil
}

// FetchReplies reads a thread and expands "more" placeholders through
// /api/morechildren, at most budget calls of up to 100 ids each.
func (pc *PublicClient) FetchReplies(ctx context.Context, itemID string, opts domain.ExpandOptions) ([]domain.Reply, error) {
	const op = "collector/PublicClient.FetchReplies"

	itemID = postID(itemID)
	_, things, status, err := pc.thread(ctx, itemID)
	if err != nil {
		return nil, classify(op, itemID, status, err)
	}

	t := newThreadTree()
	t.attach(nil, things)

	left := budget(opts)
	for len(t.pending) > 0 && left > 0 {
		p := t.pending[0]
		t.pending = t.pending[1:]
		if len(p.more.Children) == 0 {
			t.collapse(p)
			continue
		}

		ids := p.more.Children
		if len(ids) > pageSize {
			rest := p
			rest.more.Children = ids[pageSize:]
			t.pending = append(t.pending, rest)
			ids = ids[:pageSize]
		}
		left--

		loaded, err := pc.moreChildren(ctx, itemID, ids)
		if err != nil {
			t.fail(p, err)
			continue
		}
		t.attachFlat(loaded)
	}
	for _, p := range t.pending {
		t.collapse(p)
	}
	return t.replies(), nil
}

func (pc *PublicClient) thread(ctx context.Context, id string) (*redditPost, []redditThing, int, error) {
	var listings []redditListing
	u := fmt.Sprintf("%s/comments/%s.json?raw_json=1&limit=500", pc.baseURL, url.PathEscape(id))
	if status, err := pc.getJSON(ctx, u, &listings); err != nil {
		return nil, nil, status, err
	}
	if len(listings) == 0 {
		return nil, nil, http.StatusNotFound, fmt.Errorf("empty thread response")
	}

	var post *redditPost
	for _, child := range listings[0].Data.Children {
		if child.Kind == "t3" {
			var d redditPost
			if err := json.Unmarshal(child.Data, &d); err == nil {
				post = &d
			}
		}
	}
	var things []redditThing
	if len(listings) > 1 {
		things = listings[1].Data.Children
	}
	return post, things, http.StatusOK, nil
}

func (pc *PublicClient) moreChildren(ctx context.Context, itemID string, ids []string) ([]redditThing, error) {
	params := url.Values{
		"api_type": {"json"},
		"raw_json": {"1"},
		"link_id":  {"t3_" + itemID},
		"children": {strings.Join(ids, ",")},
	}
	var resp moreChildrenResponse
	if _, err := pc.getJSON(ctx, pc.baseURL+"/api/morechildren.json?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.JSON.Errors) > 0 {
		return nil, fmt.Errorf("morechildren: %v", resp.JSON.Errors[0])
	}
	return resp.JSON.Data.Things, nil
}

func (pc *PublicClient) getJSON(ctx context.Context, u string, v any) (int, error) {
	if err := pc.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("reddit public access status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

func (d redditPost) item() domain.ContentItem {
	it := domain.ContentItem{
		ID:        d.ID,
		Title:     d.Title,
		Body:      d.Selftext,
		Author:    domain.AuthorOrDeleted(d.Author),
		Score:     d.Score,
		Secondary: d.NumComments,
		Replies:   d.NumComments,
		Permalink: d.Permalink,
		URL:       d.URL,
		Flagged:   d.Over18,
		Community: d.Subreddit,
		MediaURLs: mediaURLs(d.URL),
	}
	if d.CreatedUTC > 0 {
		it.CreatedAt = epoch(d.CreatedUTC)
	}
	return it
}

func epoch(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
