package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
)

// MockClient returns deterministic fake data for either source.
type MockClient struct {
	source domain.Source
	// Latency simulates network delay (nice for testing concurrency).
	Latency time.Duration
	epoch   time.Time
}

func NewMockClient(source domain.Source) *MockClient {
	if source == "" {
		source = domain.SourceForum
	}
	return &MockClient{source: source, epoch: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (mc *MockClient) Source() domain.Source { return mc.source }

func (mc *MockClient) SupportsSort(s domain.Sort) bool {
	if mc.source == domain.SourceMicroblog {
		return s == domain.SortNewest || s == domain.SortTop
	}
	return forumSorts[s]
}

func (mc *MockClient) FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.ContentItem, error) {
	const op = "collector/MockClient.FetchPage"

	if !mc.SupportsSort(q.Sort) {
		return nil, classify(op, q.Subject, 0, fmt.Errorf("%w: %q", domain.ErrInvalidSort, q.Sort))
	}
	if err := mc.wait(ctx); err != nil {
		return nil, err
	}

	posts := make([]domain.ContentItem, 0, q.Limit)
	for i := 0; i < q.Limit; i++ {
		posts = append(posts, mc.item(q.Subject, i))
	}
	return posts, nil
}

func (mc *MockClient) FetchItem(ctx context.Context, id string) (domain.ContentItem, error) {
	if err := mc.wait(ctx); err != nil {
		return domain.ContentItem{}, err
	}
	it := mc.item("mock", 0)
	it.ID = id
	return it, nil
}

// FetchReplies returns two top-level replies, each with a reply chain three deep.
func (mc *MockClient) FetchReplies(ctx context.Context, itemID string, _ domain.ExpandOptions) ([]domain.Reply, error) {
	if err := mc.wait(ctx); err != nil {
		return nil, err
	}

	var out []domain.Reply
	for i := range 2 {
		out = append(out, mc.reply(itemID, fmt.Sprintf("%s_c%d", itemID, i), 0, 3))
	}
	return out, nil
}

func (mc *MockClient) reply(parent, id string, depth, levels int) domain.Reply {
	r := domain.Reply{
		ID:        id,
		ParentID:  parent,
		Author:    fmt.Sprintf("simulated_user_%d", depth),
		Body:      fmt.Sprintf("Simulated reply at depth %d", depth),
		Score:     10 - depth,
		CreatedAt: mc.epoch.Add(time.Duration(depth+1) * time.Minute),
		Permalink: "/mock/" + id,
	}
	if depth+1 < levels {
		r.Children = []domain.Reply{mc.reply(id, id+"_r", depth+1, levels)}
	}
	return r
}

func (mc *MockClient) item(subject string, i int) domain.ContentItem {
	id := fmt.Sprintf("mock_%s_%d", subject, i)
	it := domain.ContentItem{
		ID:        id,
		Title:     fmt.Sprintf("[%s] Simulated discussion #%d", subject, i),
		Body:      "Simulated body",
		Author:    "simulated_user",
		Score:     (i * 37) % 500,
		Secondary: (i * 7) % 50,
		Replies:   2,
		CreatedAt: mc.epoch.Add(-time.Duration(i) * time.Hour),
		Permalink: "/mock/" + id,
		URL:       "http://localhost/mock-url",
		Community: subject,
	}
	if mc.source == domain.SourceMicroblog {
		it.Title = ""
		it.Body = it.Body + " #" + subject
		it.DisplayName = "Simulated User"
		it.Language = "en"
	}
	return it
}

func (mc *MockClient) wait(ctx context.Context) error {
	if mc.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(mc.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
