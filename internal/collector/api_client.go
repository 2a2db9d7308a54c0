package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/qepting91/social-scraper/internal/domain"
	"golang.org/x/time/rate"
)

// APIClient reads the forum through the authenticated reddit API.
type APIClient struct {
	client  *reddit.Client
	limiter *rate.Limiter
}

func NewAPIClient(id, secret, user, pass, userAgent string, opts ...reddit.Opt) (*APIClient, error) {
	creds := reddit.Credentials{ID: id, Secret: secret, Username: user, Password: pass}

	opts = append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)
	client, err := reddit.NewClient(creds, opts...)
	if err != nil {
		return nil, err
	}

	// API Rate Limit: ~60 reqs/min (safe buffer)
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &APIClient{client: client, limiter: limiter}, nil
}

func (ac *APIClient) Source() domain.Source { return domain.SourceForum }

func (ac *APIClient) SupportsSort(s domain.Sort) bool { return forumSorts[s] }

// FetchPage pages through the listing (or search) until q.Limit posts are read.
func (ac *APIClient) FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.ContentItem, error) {
	const op = "collector/APIClient.FetchPage"

	var (
		result []domain.ContentItem
		after  string
	)
	for len(result) < q.Limit {
		if err := ac.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		lo := reddit.ListOptions{Limit: min(q.Limit-len(result), pageSize), After: after}
		posts, resp, err := ac.list(ctx, q, lo)
		if err != nil {
			return nil, classify(op, q.Subject, statusOf(resp), fmt.Errorf("authenticated api error: %w", err))
		}
		for _, p := range posts {
			result = append(result, postToItem(p))
		}
		if resp == nil || resp.After == "" || len(posts) == 0 {
			break
		}
		after = resp.After
	}
	return truncate(result, q.Limit), nil
}

func (ac *APIClient) list(ctx context.Context, q domain.PageQuery, lo reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error) {
	t := window(q)
	if q.Query != "" {
		return ac.client.Subreddit.SearchPosts(ctx, q.Query, q.Subject, &reddit.ListPostSearchOptions{
			ListPostOptions: reddit.ListPostOptions{ListOptions: lo, Time: t},
			Sort:            searchSort(q.Sort),
		})
	}

	switch q.Sort {
	case domain.SortNewest:
		return ac.client.Subreddit.NewPosts(ctx, q.Subject, &lo)
	case domain.SortHottest:
		return ac.client.Subreddit.HotPosts(ctx, q.Subject, &lo)
	case domain.SortRising:
		return ac.client.Subreddit.RisingPosts(ctx, q.Subject, &lo)
	case domain.SortTop:
		return ac.client.Subreddit.TopPosts(ctx, q.Subject, &reddit.ListPostOptions{ListOptions: lo, Time: t})
	case domain.SortControversial:
		return ac.client.Subreddit.ControversialPosts(ctx, q.Subject, &reddit.ListPostOptions{ListOptions: lo, Time: t})
	}
	_, err := listingPath(q.Sort)
	return nil, nil, err
}

// FetchItem reads a single post by id or permalink.
func (ac *APIClient) FetchItem(ctx context.Context, id string) (domain.ContentItem, error) {
	const op = "collector/APIClient.FetchItem"

	id = postID(id)
	if err := ac.limiter.Wait(ctx); err != nil {
		return domain.ContentItem{}, err
	}
	pc, resp, err := ac.client.Post.Get(ctx, id)
	if err != nil {
		return domain.ContentItem{}, classify(op, id, statusOf(resp), err)
	}
	if pc.Post == nil {
		return domain.ContentItem{}, domain.Errorf(domain.KindSubjectNotFound, op, id, fmt.Errorf("post %s not found", id))
	}
	return postToItem(pc.Post), nil
}

// FetchReplies reads the comment tree of a post, spending at most the
// expansion budget on "load more" calls.
func (ac *APIClient) FetchReplies(ctx context.Context, itemID string, opts domain.ExpandOptions) ([]domain.Reply, error) {
	const op = "collector/APIClient.FetchReplies"

	itemID = postID(itemID)
	if err := ac.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pc, resp, err := ac.client.Post.Get(ctx, itemID)
	if err != nil {
		return nil, classify(op, itemID, statusOf(resp), err)
	}

	left := budget(opts)
	var replies []domain.Reply
	failed := false
	for pc.HasMore() && left > 0 {
		left--
		if err := ac.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if _, err := ac.client.Post.LoadMoreComments(ctx, pc); err != nil {
			replies = append(replies, domain.Reply{ID: pc.More.ID, Unavailable: true, Err: err})
			failed = true
			break
		}
	}
	if !failed && pc.HasMore() {
		replies = append(replies, domain.Reply{
			ID:        pc.More.ID,
			ParentID:  pc.More.ParentID,
			Collapsed: max(pc.More.Count, len(pc.More.Children)),
			More:      true,
		})
	}

	converted := make([]domain.Reply, 0, len(pc.Comments)+len(replies))
	for _, c := range pc.Comments {
		converted = append(converted, ac.commentToReply(ctx, c, &left))
	}
	return append(converted, replies...), nil
}

func (ac *APIClient) commentToReply(ctx context.Context, c *reddit.Comment, left *int) domain.Reply {
	r := domain.Reply{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Author:    c.Author,
		Body:      c.Body,
		Score:     c.Score,
		Permalink: c.Permalink,
	}
	if c.Created != nil {
		r.CreatedAt = c.Created.Time
	}

	var failed *domain.Reply
	if c.HasMore() {
		if *left > 0 && ac.limiter.Wait(ctx) == nil {
			*left--
			if _, err := ac.client.Comment.LoadMoreReplies(ctx, c); err != nil {
				failed = &domain.Reply{ID: c.Replies.More.ID, ParentID: c.FullID, Unavailable: true, Err: err}
			} else if c.HasMore() {
				r.Collapsed = c.Replies.More.Count
			}
		} else {
			r.Collapsed = c.Replies.More.Count
		}
	}

	for _, child := range c.Replies.Comments {
		r.Children = append(r.Children, ac.commentToReply(ctx, child, left))
	}
	if failed != nil {
		r.Children = append(r.Children, *failed)
	}
	return r
}

func postToItem(p *reddit.Post) domain.ContentItem {
	it := domain.ContentItem{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Author:    domain.AuthorOrDeleted(p.Author),
		Score:     p.Score,
		Secondary: p.NumberOfComments,
		Replies:   p.NumberOfComments,
		Permalink: p.Permalink,
		URL:       p.URL,
		Flagged:   p.NSFW,
		Community: p.SubredditName,
		MediaURLs: mediaURLs(p.URL),
	}
	if p.Created != nil {
		it.CreatedAt = p.Created.Time.UTC()
	}
	return it
}

func statusOf(resp *reddit.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
