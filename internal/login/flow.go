// 包 login 实现交互式登录流程：打开登录页，等待用户在浏览器中完成登录，
// 随后读取显示名与 Cookie。流程状态 Idle → Navigating → Polling → Authenticated | Failed。
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tt-creator/internal/browser"
	"tt-creator/internal/logx"
	"tt-creator/internal/model"
	"tt-creator/internal/rules"
)

var (
	ErrLoginTimeout     = errors.New("login timeout")
	ErrUsernameNotFound = errors.New("username not found")
)

// State 为登录流程所处阶段。
type State int

const (
	Idle State = iota
	Navigating
	Polling
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Navigating:
		return "navigating"
	case Polling:
		return "polling"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Error 记录失败发生时所处的阶段。
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("login (%s): %v", e.State, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Options 为登录流程参数，零值字段使用 DefaultOptions 中的值。
type Options struct {
	URL          string
	Marker       string
	PollInterval time.Duration
	Deadline     time.Duration
	Settle       time.Duration
	NameWait     time.Duration
	Browser      browser.Options
}

func DefaultOptions() Options {
	return Options{
		URL:          "https://mp.toutiao.com/auth/page/login",
		Marker:       "login",
		PollInterval: time.Second,
		Deadline:     5 * time.Minute,
		Settle:       5 * time.Second,
		NameWait:     5 * time.Second,
		Browser:      browser.DefaultOptions(),
	}
}

// Result 为登录成功后得到的账号信息。
type Result struct {
	Username string
	Cookies  []model.Cookie
}

// Flow 执行一次登录；不自动重试，调用方决定是否重新发起。
type Flow struct {
	launcher browser.Launcher
	opts     Options
	page     *rules.LoginPage
	log      *logx.Logger

	mu    sync.Mutex
	state State
}

// New 创建登录流程；page 为 nil 时使用内置规则。
func New(l browser.Launcher, opts Options, page *rules.LoginPage, log *logx.Logger) *Flow {
	if log == nil {
		log = logx.Nop()
	}
	if page == nil {
		page = rules.Default().Login
	}
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	if opts.Marker == "" {
		opts.Marker = def.Marker
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Deadline <= 0 {
		opts.Deadline = def.Deadline
	}
	return &Flow{launcher: l, opts: opts, page: page, log: log, state: Idle}
}

// State 返回当前阶段。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) set(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flow) fail(at State, err error) error {
	f.set(Failed)
	f.log.Warnf("登录失败（%s）：%v", at, err)
	return &Error{State: at, Err: err}
}

// Run 打开浏览器并等待登录完成。会话在任何路径上都只关闭一次。
func (f *Flow) Run(ctx context.Context) (Result, error) {
	f.set(Navigating)
	sess, err := f.launcher.Open(ctx, f.opts.Browser)
	if err != nil {
		return Result{}, f.fail(Navigating, fmt.Errorf("open browser: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			f.log.Warnf("关闭浏览器失败：%v", err)
		}
	}()

	f.log.Debugf("打开登录页：%s", f.opts.URL)
	if err := sess.Navigate(ctx, f.opts.URL); err != nil {
		return Result{}, f.fail(Navigating, err)
	}

	f.set(Polling)
	f.log.Infof("请在浏览器中完成登录（最长等待 %s）", f.opts.Deadline)
	if err := f.waitLeave(ctx, sess); err != nil {
		return Result{}, f.fail(Polling, err)
	}

	f.log.Debugf("已离开登录页，等待页面渲染 %s", f.opts.Settle)
	if err := sleep(ctx, f.opts.Settle); err != nil {
		return Result{}, f.fail(Polling, err)
	}
	name, err := f.username(ctx, sess)
	if err != nil {
		return Result{}, f.fail(Authenticated, err)
	}
	list, err := sess.Cookies(ctx)
	if err != nil {
		return Result{}, f.fail(Authenticated, err)
	}
	f.set(Authenticated)
	f.log.Infof("登录成功：%s（cookies=%d）", name, len(list))
	return Result{Username: name, Cookies: list}, nil
}

// waitLeave 每 PollInterval 读取一次地址，直到不再包含登录标记；超过 Deadline 返回 ErrLoginTimeout。
func (f *Flow) waitLeave(ctx context.Context, sess browser.Session) error {
	pctx, cancel := context.WithTimeout(ctx, f.opts.Deadline)
	defer cancel()
	tick := time.NewTicker(f.opts.PollInterval)
	defer tick.Stop()
	for {
		u, err := sess.CurrentURL(pctx)
		if err == nil && !strings.Contains(u, f.opts.Marker) {
			return nil
		}
		if err != nil && pctx.Err() == nil {
			return fmt.Errorf("poll location: %w", err)
		}
		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %s", ErrLoginTimeout, f.opts.Deadline)
		case <-tick.C:
		}
	}
}

// username 依次尝试规则中的选择器（每个最多等待 NameWait），
// 全部失败后扫描叶子元素，取第一个包含标记词的文本。
func (f *Flow) username(ctx context.Context, sess browser.Session) (string, error) {
	for _, q := range rules.Split(f.page.Name) {
		_, sel, err := browser.WaitFor(ctx, sess, []string{q}, f.opts.NameWait, browser.DefaultPollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			f.log.Debugf("用户名选择器 %s 未命中：%v", q, err)
			continue
		}
		if name := greeting(sel.First().Text()); name != "" {
			f.log.Debugf("用户名选择器 %s 命中：%s", q, name)
			return name, nil
		}
	}
	// 最后逐个叶子元素匹配关键字；页面尚未渲染出元素时最多等待 ImplicitWait
	leaves, err := browser.Find(ctx, sess, "body *")
	switch {
	case errors.Is(err, browser.ErrElementNotFound):
		return "", ErrUsernameNotFound
	case err != nil:
		return "", err
	}
	var name string
	leaves.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := rules.Clean(s.Text())
		for _, m := range f.page.Markers {
			if m != "" && strings.Contains(text, m) {
				name = text
				return false
			}
		}
		return true
	})
	if name == "" {
		return "", ErrUsernameNotFound
	}
	return name, nil
}

// greeting 处理"晚上好，NAME"这样的问候语，取分隔符后的部分。
func greeting(text string) string {
	text = rules.Clean(text)
	for _, sep := range []string{"，", ","} {
		if strings.Contains(text, sep) {
			return strings.TrimSpace(strings.Split(text, sep)[1])
		}
	}
	return text
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
