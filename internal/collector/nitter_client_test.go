package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestNitter(t *testing.T, h http.Handler) *NitterClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	nc, err := NewNitterClient(srv.URL, "scraper/test")
	require.NoError(t, err)
	nc.limiter = rate.NewLimiter(rate.Inf, 1)
	nc.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }
	return nc
}

func tweetHTML(user, id, body string, likes, retweets int) string {
	return fmt.Sprintf(`
<div class="timeline-item">
  <a class="tweet-link" href="/%[1]s/status/%[2]s#m"></a>
  <div class="tweet-body">
    <div class="tweet-header">
      <a class="fullname" href="/%[1]s">%[1]s name</a>
      <a class="username" href="/%[1]s">@%[1]s</a>
      <span class="tweet-date"><a href="/%[1]s/status/%[2]s#m" title="Mar 5, 2024 · 4:30 PM UTC">5 Mar</a></span>
    </div>
    <div class="tweet-content media-body">%[3]s</div>
    <div class="attachments"><a class="still-image" href="/pic/orig/%[2]s.jpg"></a></div>
    <div class="tweet-stats">
      <span class="tweet-stat"><div class="icon-container"><span class="icon-comment"></span> 2</div></span>
      <span class="tweet-stat"><div class="icon-container"><span class="icon-retweet"></span> %[5]d</div></span>
      <span class="tweet-stat"><div class="icon-container"><span class="icon-quote"></span> 0</div></span>
      <span class="tweet-stat"><div class="icon-container"><span class="icon-heart"></span> %[4]d</div></span>
    </div>
  </div>
</div>`, user, id, body, likes, retweets)
}

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func TestNitterClient_SearchQuery(t *testing.T) {
	nc := newTestNitter(t, http.NotFoundHandler())

	got := nc.SearchQuery(domain.PageQuery{
		Subject: "golang", Sort: domain.SortTop, Window: domain.WindowWeek,
		Language: "en", ExcludeReposts: true,
	})
	require.Equal(t, "golang since:2024-03-03 lang:en -filter:retweets -filter:replies", got)

	got = nc.SearchQuery(domain.PageQuery{
		Subject: "@golang", Timeline: true, IncludeReplies: true, Sort: domain.SortNewest,
		Window: domain.WindowDay, Until: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, "from:golang until:2024-03-09", got, "window ignored for newest")
}

func TestNitterClient_FetchPage(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "tweets", r.URL.Query().Get("f"))
		if r.URL.Query().Get("cursor") == "" {
			require.Equal(t, "golang lang:en -filter:replies", r.URL.Query().Get("q"))
			fmt.Fprint(w, page(`<div class="timeline">`+
				tweetHTML("gopher", "111", "Go 1.22 is out", 5678, 1234)+
				`<div class="show-more"><a href="?f=tweets&amp;q=golang&amp;cursor=abc">Load more</a></div></div>`))
			return
		}
		require.Equal(t, "abc", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, page(`<div class="timeline">`+tweetHTML("rob", "112", "generics", 1, 0)+`</div>`))
	}))

	items, err := nc.FetchPage(context.Background(), domain.PageQuery{
		Subject: "golang", Sort: domain.SortNewest, Language: "en", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	it := items[0]
	require.Equal(t, "111", it.ID)
	require.Equal(t, "gopher", it.Author)
	require.Equal(t, "gopher name", it.DisplayName)
	require.Equal(t, "Go 1.22 is out", it.Body)
	require.Equal(t, 5678, it.Score)
	require.Equal(t, 1234, it.Secondary)
	require.Equal(t, 2, it.Replies)
	require.Equal(t, "en", it.Language)
	require.True(t, time.Date(2024, 3, 5, 16, 30, 0, 0, time.UTC).Equal(it.CreatedAt))
	require.Equal(t, "https://twitter.com/gopher/status/111", it.Permalink)
	require.Len(t, it.MediaURLs, 1)
	require.Equal(t, "112", items[1].ID)
}

func TestNitterClient_FetchPageStopsAtLimit(t *testing.T) {
	calls := 0
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, page(tweetHTML("a", "1", "x", 1, 1)+tweetHTML("b", "2", "y", 1, 1)+
			`<div class="show-more"><a href="?cursor=next">more</a></div>`))
	}))

	items, err := nc.FetchPage(context.Background(), domain.PageQuery{Subject: "q", Sort: domain.SortTop, Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, calls)
}

func TestNitterClient_UnsupportedSort(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL)
	}))
	require.False(t, nc.SupportsSort(domain.SortRising))

	_, err := nc.FetchPage(context.Background(), domain.PageQuery{Subject: "q", Sort: domain.SortRising, Limit: 1})
	require.ErrorIs(t, err, domain.ErrInvalidSort)
}

func TestNitterClient_NotFound(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`<div class="error-panel"><span>User "nobody" not found</span></div>`))
	}))
	_, err := nc.FetchPage(context.Background(), domain.PageQuery{Subject: "nobody", Timeline: true, Sort: domain.SortNewest, Limit: 1})
	require.ErrorIs(t, err, domain.ErrSubjectNotFound)

	nc = newTestNitter(t, http.NotFoundHandler())
	_, err = nc.FetchItem(context.Background(), "123")
	require.ErrorIs(t, err, domain.ErrSubjectNotFound)
}

const statusPage = `
<div class="main-thread"><div class="main-tweet">%s</div></div>
<div class="replies">
  <div class="reply thread thread-line">%s%s
    <div class="more-replies"><a class="more-replies-text" href="/bob/status/202#m">more replies</a></div>
  </div>
  <div class="reply thread thread-line">
    <div class="timeline-item unavailable"><div class="unavailable-box">This tweet is unavailable</div></div>
  </div>
  <div class="show-more"><a href="?cursor=xyz">Load more</a></div>
</div>`

func TestNitterClient_FetchReplies(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/i/status/111", r.URL.Path)
		if r.URL.Query().Get("cursor") == "xyz" {
			fmt.Fprint(w, page(`<div class="replies"><div class="reply thread">`+tweetHTML("carol", "301", "late", 1, 0)+`</div></div>`))
			return
		}
		fmt.Fprint(w, page(fmt.Sprintf(statusPage,
			tweetHTML("gopher", "111", "root", 10, 1),
			tweetHTML("alice", "201", "first", 4, 0),
			tweetHTML("bob", "202", "second", 2, 0))))
	}))

	replies, err := nc.FetchReplies(context.Background(), "https://twitter.com/gopher/status/111", domain.ExpandOptions{MaxExpansions: 1})
	require.NoError(t, err)
	require.Len(t, replies, 3)

	first := replies[0]
	require.Equal(t, "201", first.ID)
	require.Equal(t, "111", first.ParentID)
	require.Len(t, first.Children, 1)
	require.Equal(t, "202", first.Children[0].ID)
	require.Equal(t, "201", first.Children[0].ParentID)
	require.Equal(t, 1, first.Children[0].Collapsed)

	require.True(t, replies[1].Unavailable)
	require.Equal(t, "301", replies[2].ID)
}

func TestNitterClient_FetchRepliesUnfollowedCursor(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") != "" {
			t.Fatalf("cursor followed without budget")
		}
		fmt.Fprint(w, page(fmt.Sprintf(statusPage,
			tweetHTML("gopher", "111", "root", 10, 1),
			tweetHTML("alice", "201", "first", 4, 0),
			tweetHTML("bob", "202", "second", 2, 0))))
	}))

	replies, err := nc.FetchReplies(context.Background(), "111", domain.ExpandOptions{MaxExpansions: -1})
	require.NoError(t, err)
	require.NotEmpty(t, replies)

	last := replies[len(replies)-1]
	require.True(t, last.More)
	require.Equal(t, "111", last.ParentID)
	require.Equal(t, 1, last.Collapsed)
}

func TestNitterClient_FetchItem(t *testing.T) {
	nc := newTestNitter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(fmt.Sprintf(statusPage,
			tweetHTML("gopher", "111", "root", 10, 1), "", "")))
	}))

	it, err := nc.FetchItem(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, "111", it.ID)
	require.Equal(t, "root", it.Body)
	require.Equal(t, 10, it.Score)
}

func TestStatusID(t *testing.T) {
	require.Equal(t, "42", statusID("/user/status/42#m"))
	require.Equal(t, "42", statusID("https://twitter.com/user/status/42?s=20"))
	require.Equal(t, "42", statusID("42"))
}

func TestLinkChain(t *testing.T) {
	_, ok := linkChain(nil, "p")
	require.False(t, ok)

	r, ok := linkChain([]domain.Reply{{ID: "a"}, {ID: "b"}, {ID: "c"}}, "p")
	require.True(t, ok)
	require.Equal(t, "p", r.ParentID)
	require.Equal(t, "c", r.Children[0].Children[0].ID)
	require.Equal(t, "b", r.Children[0].Children[0].ParentID)
}
