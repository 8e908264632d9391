package scrape_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"tt-creator/internal/browser"
	"tt-creator/internal/browser/browsertest"
	"tt-creator/internal/model"
	"tt-creator/internal/scrape"
)

const (
	home     = "https://mp.test/"
	articles = "https://mp.test/profile_v4/graphic/articles"
)

const cards = `<body>
<div class="article-card">
  <div class="title">First post</div>
  <span class="create-time">2024-01-02 10:00</span>
  <ul class="count"><li>展现 1,024</li><li>阅读 88</li><li>点赞 5</li><li>评论 3</li></ul>
</div>
<div class="article-card"><div class="title">Second post</div></div>
<div class="article-card"><span>untitled</span></div>
</body>`

func opts() scrape.Options {
	o := scrape.DefaultOptions()
	o.HomeURL = home
	o.ArticlesURL = articles
	o.WaitTimeout = 20 * time.Millisecond
	o.FallbackWait = 0
	o.PollInterval = 5 * time.Millisecond
	return o
}

func session(html string) *browsertest.Session {
	return &browsertest.Session{Pages: map[string]string{home: "<body></body>", articles: html}}
}

func fetch(t *testing.T, sess *browsertest.Session, ctx context.Context, list []model.Cookie) ([]model.Article, error) {
	t.Helper()
	l := &browsertest.Launcher{Session: sess}
	got, err := scrape.New(l, opts(), nil, nil).Fetch(ctx, list)
	require.Equal(t, 1, sess.Closed(), "session must be closed exactly once")
	return got, err
}

func TestFetch_ExtractsWithDefaults(t *testing.T) {
	sess := session(cards)
	got, err := fetch(t, sess, context.Background(), []model.Cookie{{Name: "sessionid", Value: "x"}})
	require.NoError(t, err)
	want := []model.Article{
		{Title: "First post", PublishTime: "2024-01-02 10:00", ShowCount: "1,024", ReadCount: "88", DiggCount: "5", CommentCount: "3"},
		{Title: "Second post", PublishTime: "-", ShowCount: "0", ReadCount: "0", DiggCount: "0", CommentCount: "0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("articles mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{home, articles}, sess.Visited())
	require.Equal(t, []model.Cookie{{Name: "sessionid", Value: "x", Domain: ".toutiao.com", Path: "/"}}, sess.Jar)
}

func TestFetch_FallbackSelectorOrder(t *testing.T) {
	html := `<body>
<div class="article-list-item"><div class="title">from list item</div></div>
<table><tbody class="byte-table-tbody">
  <tr><td class="title">Row A</td><td class="create-time">t1</td><td class="digg-count">7</td></tr>
  <tr><td class="title">Row B</td></tr>
</tbody></table>
</body>`
	got, err := fetch(t, session(html), context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2, "first fallback in list order wins over later ones")
	require.Equal(t, "Row A", got[0].Title)
	require.Equal(t, "t1", got[0].PublishTime)
	require.Equal(t, "7", got[0].DiggCount, "class-substring selector used when no labelled stat")
	require.Equal(t, "Row B", got[1].Title)
}

func TestFetch_ActionLinksAreNotCounts(t *testing.T) {
	html := `<body>
<div class="article-card">
  <div class="title">With actions</div>
  <a class="comment-entry">评论管理</a>
  <span class="read-status">阅读中</span>
  <ul class="count"><li>展现 12</li></ul>
</div>
</body>`
	got, err := fetch(t, session(html), context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "12", got[0].ShowCount)
	require.Equal(t, "0", got[0].CommentCount)
	require.Equal(t, "0", got[0].ReadCount)
}

func TestFetch_NoMatchIsEmpty(t *testing.T) {
	got, err := fetch(t, session(`<body><p>维护中</p></body>`), context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFetch_TransportFailures(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*browsertest.Session)
		step scrape.Step
		is   error
	}{
		{"home navigation", func(s *browsertest.Session) { s.NavigateErr = map[string]error{home: browsertest.ErrInjected} }, scrape.StepHome, browsertest.ErrInjected},
		{"articles timeout", func(s *browsertest.Session) {
			s.NavigateErr = map[string]error{articles: browser.ErrNavigationTimeout}
		}, scrape.StepArticles, browser.ErrNavigationTimeout},
		{"dom read", func(s *browsertest.Session) { s.HTMLErr = browsertest.ErrInjected }, scrape.StepWait, browsertest.ErrInjected},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sess := session(cards)
			c.mod(sess)
			got, err := fetch(t, sess, context.Background(), nil)
			require.Nil(t, got)
			require.ErrorIs(t, err, c.is)
			var se *scrape.Error
			require.True(t, errors.As(err, &se), "err=%v", err)
			require.Equal(t, c.step, se.Step)
		})
	}
}

func TestFetch_CookieFailureIsSkipped(t *testing.T) {
	sess := session(cards)
	sess.AddCookieErr = map[string]error{"bad": browsertest.ErrInjected}
	got, err := fetch(t, sess, context.Background(), []model.Cookie{
		{Name: "bad", Value: "1"},
		{Name: "good", Value: "2"},
		{Name: "", Value: "nameless"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, sess.Jar, 1)
	require.Equal(t, "good", sess.Jar[0].Name)
}

func TestFetch_OpenFailure(t *testing.T) {
	l := &browsertest.Launcher{OpenErr: browsertest.ErrInjected}
	_, err := scrape.New(l, opts(), nil, nil).Fetch(context.Background(), nil)
	var se *scrape.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, scrape.StepOpen, se.Step)
}

func TestFetch_ClosesOnPanic(t *testing.T) {
	sess := session(cards)
	sess.AfterNavigate = func(_ context.Context, url string) error {
		if url == articles {
			panic("renderer crashed")
		}
		return nil
	}
	l := &browsertest.Launcher{Session: sess}
	require.Panics(t, func() {
		_, _ = scrape.New(l, opts(), nil, nil).Fetch(context.Background(), nil)
	})
	require.Equal(t, 1, sess.Closed())
}

func TestFetch_ContextDeadline(t *testing.T) {
	sess := session(cards)
	sess.AfterNavigate = func(ctx context.Context, url string) error {
		if url == articles {
			return browsertest.BlockUntilDone(ctx, url)
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := fetch(t, sess, ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
