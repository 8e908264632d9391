package login_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tt-creator/internal/browser"
	"tt-creator/internal/browser/browsertest"
	"tt-creator/internal/login"
	"tt-creator/internal/model"
)

const (
	loginURL = "https://mp.toutiao.com/auth/page/login"
	homeURL  = "https://mp.toutiao.com/profile_v4/index"
)

func fastOptions() login.Options {
	o := login.DefaultOptions()
	o.PollInterval = 5 * time.Millisecond
	o.Deadline = time.Second
	o.Settle = 0
	o.NameWait = 0
	return o
}

// loggedIn 返回"第三次轮询时已跳转到首页"的会话。
func loggedIn(dashboard string) *browsertest.Session {
	return &browsertest.Session{
		Pages: map[string]string{loginURL: dashboard},
		URLs:  []string{loginURL, loginURL, homeURL},
		Jar:   []model.Cookie{{Name: "sessionid", Value: "s1", Domain: ".toutiao.com", Path: "/"}},
	}
}

func run(t *testing.T, sess *browsertest.Session, opts login.Options) (*login.Flow, login.Result, error) {
	t.Helper()
	l := &browsertest.Launcher{Session: sess}
	f := login.New(l, opts, nil, nil)
	require.Equal(t, login.Idle, f.State())
	res, err := f.Run(context.Background())
	require.Equal(t, 1, sess.Closed(), "session must be closed exactly once")
	return f, res, err
}

func TestFlow_Success(t *testing.T) {
	sess := loggedIn(`<body><div class="menu-title">晚上好，PenpoAI创意</div></body>`)
	f, res, err := run(t, sess, fastOptions())
	require.NoError(t, err)
	require.Equal(t, login.Authenticated, f.State())
	require.Equal(t, "PenpoAI创意", res.Username)
	require.Equal(t, sess.Jar, res.Cookies)
	require.Equal(t, []string{loginURL}, sess.Visited())
}

func TestFlow_UsernameFallbacks(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{"ascii comma", `<div class="auth-avator-name">Hi, Alice</div>`, "Alice"},
		{"class substring", `<div class="x-menu-title-y">Bob</div>`, "Bob"},
		{"plain name", `<span class="menu-title"> Carol </span>`, "Carol"},
		{"marker scan", `<body><div><p>欢迎</p><p>我的AI号</p></div></body>`, "我的AI号"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, res, err := run(t, loggedIn(c.html), fastOptions())
			require.NoError(t, err)
			require.Equal(t, c.want, res.Username)
		})
	}
}

func TestFlow_UsernameNotFound(t *testing.T) {
	f, _, err := run(t, loggedIn(`<body><p>nothing</p></body>`), fastOptions())
	require.True(t, errors.Is(err, login.ErrUsernameNotFound), "err=%v", err)
	var le *login.Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, login.Authenticated, le.State)
	require.Equal(t, login.Failed, f.State())
}

func TestFlow_EmptyPageIsNotFound(t *testing.T) {
	o := fastOptions()
	o.Browser.ImplicitWait = 0
	sess := loggedIn(`<body></body>`)
	f, _, err := run(t, sess, o)
	require.True(t, errors.Is(err, login.ErrUsernameNotFound), "err=%v", err)
	require.Equal(t, login.Failed, f.State())
}

func TestFlow_Timeout(t *testing.T) {
	sess := &browsertest.Session{URLs: []string{loginURL}}
	o := fastOptions()
	o.Deadline = 40 * time.Millisecond
	f, _, err := run(t, sess, o)
	require.True(t, errors.Is(err, login.ErrLoginTimeout), "err=%v", err)
	var le *login.Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, login.Polling, le.State)
	require.Equal(t, login.Failed, f.State())
}

func TestFlow_NavigationFailure(t *testing.T) {
	sess := &browsertest.Session{NavigateErr: map[string]error{loginURL: browser.ErrNavigationTimeout}}
	_, _, err := run(t, sess, fastOptions())
	require.ErrorIs(t, err, browser.ErrNavigationTimeout)
	var le *login.Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, login.Navigating, le.State)
}

func TestFlow_CookieReadFailure(t *testing.T) {
	sess := loggedIn(`<div class="menu-title">Dan</div>`)
	sess.CookiesErr = browsertest.ErrInjected
	_, _, err := run(t, sess, fastOptions())
	require.ErrorIs(t, err, browsertest.ErrInjected)
}

func TestFlow_OpenFailure(t *testing.T) {
	l := &browsertest.Launcher{OpenErr: browsertest.ErrInjected}
	f := login.New(l, fastOptions(), nil, nil)
	_, err := f.Run(context.Background())
	require.ErrorIs(t, err, browsertest.ErrInjected)
	require.Equal(t, login.Failed, f.State())
}

func TestFlow_CancelStopsPolling(t *testing.T) {
	sess := &browsertest.Session{URLs: []string{loginURL}}
	l := &browsertest.Launcher{Session: sess}
	o := fastOptions()
	o.Deadline = time.Minute
	f := login.New(l, o, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, errors.Is(err, login.ErrLoginTimeout))
	require.Equal(t, 1, sess.Closed())
}

func TestFlow_PassesBrowserOptions(t *testing.T) {
	sess := loggedIn(`<div class="menu-title">Eve</div>`)
	l := &browsertest.Launcher{Session: sess}
	o := fastOptions()
	o.Browser.IgnoreCertErrors = true
	_, err := login.New(l, o, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.True(t, l.LastOptions().IgnoreCertErrors)
}
