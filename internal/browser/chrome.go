package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/shirou/gopsutil/v4/process"

	"tt-creator/internal/logx"
	"tt-creator/internal/model"
)

// closeWait 为优雅关闭浏览器的等待上限，超过后强制结束进程树。
const closeWait = 5 * time.Second

// Chrome 基于 chromedp 启动本机 Chrome/Chromium。
type Chrome struct {
	Log *logx.Logger
}

// NewChrome 创建启动器。
func NewChrome(log *logx.Logger) *Chrome {
	if log == nil {
		log = logx.Nop()
	}
	return &Chrome{Log: log}
}

// allocatorOptions 组装启动参数。
func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
		chromedp.UserAgent(o.UserAgent),
	)
	if !o.AllowAutomationFlags {
		opts = append(opts,
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
	}
	if o.IgnoreCertErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Open 启动浏览器并打开一个标签页。
// 浏览器进程绑定在首次 Run 的 context 上，所以首次 Run 使用不带超时的标签页 context，
// 之后只由 Close 结束；ctx 与 PageLoadTimeout 只约束等待启动的时间。
func (c *Chrome) Open(ctx context.Context, o Options) (Session, error) {
	def := DefaultOptions()
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = def.WindowWidth, def.WindowHeight
	}
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = def.PageLoadTimeout
	}
	if o.ScriptTimeout <= 0 {
		o.ScriptTimeout = def.ScriptTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(o)...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(c.Log.Warnf))
	s := &chromeSession{opts: o, log: c.Log, tab: tab, tabCancel: tabCancel, allocCancel: allocCancel}

	// 空 Run 会真正启动浏览器
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()
	timer := time.NewTimer(o.PageLoadTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("start browser after %s: %w", o.PageLoadTimeout, ErrLaunchTimeout)
	}
	if b := chromedp.FromContext(tab).Browser; b != nil {
		if p := b.Process(); p != nil {
			s.pid = int32(p.Pid)
		}
	}
	c.Log.Debugf("浏览器已启动 pid=%d headless=%v", s.pid, o.Headless)
	return s, nil
}

type chromeSession struct {
	opts        Options
	log         *logx.Logger
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	pid         int32

	once     sync.Once
	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (s *chromeSession) Options() Options { return s.opts }

// run 在标签页上执行动作：超时取 limit，调用方 ctx 结束时中止正在进行的 CDP 调用。
func (s *chromeSession) run(ctx context.Context, limit time.Duration, actions ...chromedp.Action) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	cctx, cancel := context.WithTimeout(s.tab, limit)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(cctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.opts.PageLoadTimeout, chromedp.Navigate(url))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("navigate %s: %w", url, ErrNavigationTimeout)
	}
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, s.opts.ScriptTimeout, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.opts.ScriptTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) AddCookie(ctx context.Context, c model.Cookie) error {
	return s.run(ctx, s.opts.ScriptTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		p := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly)
		if ss := sameSite(c.SameSite); ss != "" {
			p = p.WithSameSite(ss)
		}
		if c.Expiry > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(c.Expiry, 0))
			p = p.WithExpires(&exp)
		}
		return p.Do(ctx)
	}))
}

func (s *chromeSession) Cookies(ctx context.Context) ([]model.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.opts.ScriptTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		mc := model.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			mc.Expiry = int64(c.Expires)
		}
		out = append(out, mc)
	}
	return out, nil
}

// Close 先尝试优雅关闭，超时后结束整个进程树（渲染/GPU 子进程也一并清理）。
func (s *chromeSession) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// 先记下子进程，主进程退出后它们会被重新挂到 init 下
		var children []*process.Process
		if s.pid > 0 {
			children = childrenOf(s.pid)
		}

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.tab) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		case <-time.After(closeWait):
			s.log.Warnf("浏览器未在 %s 内退出，强制结束 pid=%d", closeWait, s.pid)
		}
		s.tabCancel()
		s.allocCancel()

		for _, p := range append(children, pidProcess(s.pid)...) {
			killTree(p, s.log)
		}
	})
	return s.closeErr
}

func pidProcess(pid int32) []*process.Process {
	if pid <= 0 {
		return nil
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	return []*process.Process{p}
}

// childrenOf 列出 pid 的直接子进程；Children 不可用时（如缺少 /proc/<pid>/task/*/children）扫描全部进程。
func childrenOf(pid int32) []*process.Process {
	if p, err := process.NewProcess(pid); err == nil {
		if kids, err := p.Children(); err == nil {
			return kids
		}
	}
	all, err := process.Processes()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, p := range all {
		if ppid, err := p.Ppid(); err == nil && ppid == pid {
			out = append(out, p)
		}
	}
	return out
}

// killTree 结束仍在运行的进程及其子进程。
func killTree(p *process.Process, log *logx.Logger) {
	if running, err := p.IsRunning(); err != nil || !running {
		return
	}
	for _, k := range childrenOf(p.Pid) {
		killTree(k, log)
	}
	if err := p.Kill(); err != nil {
		log.Debugf("结束进程失败 pid=%d 错误=%v", p.Pid, err)
	}
}

// sameSite 将存储中的写法统一为 CDP 的枚举值。
func sameSite(v string) network.CookieSameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none", "no_restriction":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}
