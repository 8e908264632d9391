// 包 browsertest 提供脚本化的内存浏览器会话，供登录与抓取的测试使用。
package browsertest

import (
	"context"
	"errors"
	"sync"

	"tt-creator/internal/browser"
	"tt-creator/internal/model"
)

// Launcher 每次 Open 返回 NewSession 生成的会话（未设置时返回 Session 字段）。
type Launcher struct {
	Session    *Session
	NewSession func() *Session
	OpenErr    error

	mu       sync.Mutex
	opened   int
	sessions []*Session
	lastOpts browser.Options
}

func (l *Launcher) Open(ctx context.Context, opts browser.Options) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOpts = opts
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.Session
	if l.NewSession != nil {
		s = l.NewSession()
	}
	if s == nil {
		s = &Session{}
	}
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
	l.opened++
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Opened 返回 Open 成功的次数。
func (l *Launcher) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

// Sessions 返回全部已打开的会话。
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// LastOptions 返回最近一次 Open 收到的参数。
func (l *Launcher) LastOptions() browser.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastOpts
}

// Session 的行为由字段脚本化：
// - Pages：URL -> 该页面的 HTML，Navigate 后 HTML 返回对应内容
// - URLs：CurrentURL 依次返回的地址，用尽后停留在最后一个；为空时返回当前页面 URL
// - NavigateErr：对指定 URL 的导航返回错误
// - AfterNavigate：导航完成后的回调（例如阻塞直到 ctx 结束）
type Session struct {
	Pages         map[string]string
	URLs          []string
	NavigateErr   map[string]error
	HTMLErr       error
	AddCookieErr  map[string]error
	CookiesErr    error
	Jar           []model.Cookie
	AfterNavigate func(ctx context.Context, url string) error

	mu       sync.Mutex
	opts     browser.Options
	current  string
	urlIdx   int
	visited  []string
	closed   int
	htmlRead int
}

func (s *Session) Options() browser.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed > 0 {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.visited = append(s.visited, url)
	err := s.NavigateErr[url]
	if err == nil {
		s.current = url
	}
	hook := s.AfterNavigate
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, url)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.URLs) == 0 {
		return s.current, nil
	}
	u := s.URLs[s.urlIdx]
	if s.urlIdx < len(s.URLs)-1 {
		s.urlIdx++
	}
	return u, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.htmlRead++
	if s.HTMLErr != nil {
		return "", s.HTMLErr
	}
	return s.Pages[s.current], nil
}

func (s *Session) AddCookie(ctx context.Context, c model.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.AddCookieErr[c.Name]; err != nil {
		return err
	}
	s.Jar = append(s.Jar, c)
	return nil
}

func (s *Session) Cookies(ctx context.Context) ([]model.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CookiesErr != nil {
		return nil, s.CookiesErr
	}
	return append([]model.Cookie(nil), s.Jar...), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed 返回 Close 被调用的次数。
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Visited 返回按顺序导航过的 URL。
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// HTMLReads 返回读取 DOM 的次数。
func (s *Session) HTMLReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.htmlRead
}

// Cookie 构造只有 name/value 的 Cookie。
func Cookie(name, value string) model.Cookie { return model.Cookie{Name: name, Value: value} }

// BlockUntilDone 用于 AfterNavigate：阻塞到 ctx 结束，模拟卡住的页面。
func BlockUntilDone(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// ErrInjected 为测试中注入的通用失败。
var ErrInjected = errors.New("injected failure")
