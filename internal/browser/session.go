// 包 browser 提供浏览器会话：打开/导航/读取渲染后的 DOM/注入 Cookie/关闭。
// 登录与抓取都通过 Launcher 获得 Session，测试使用 browsertest 中的脚本化实现。
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tt-creator/internal/cookies"
	"tt-creator/internal/logx"
	"tt-creator/internal/model"
)

var (
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrElementNotFound   = errors.New("element not found")
	ErrSessionClosed     = errors.New("session closed")
	ErrLaunchTimeout     = errors.New("browser launch timeout")
)

// DefaultPollInterval 为 WaitFor 未指定间隔时的轮询周期。
const DefaultPollInterval = 500 * time.Millisecond

// Options 为打开会话时的固定参数。
type Options struct {
	ExecPath             string
	Headless             bool
	WindowWidth          int
	WindowHeight         int
	UserAgent            string
	AllowAutomationFlags bool
	IgnoreCertErrors     bool
	PageLoadTimeout      time.Duration
	ScriptTimeout        time.Duration
	// ImplicitWait 为 Find 查找元素时的等待上限
	ImplicitWait time.Duration
}

// DefaultOptions 返回内置默认参数：证书错误不忽略，自动化特征隐藏。
func DefaultOptions() Options {
	return Options{
		WindowWidth:     1024,
		WindowHeight:    768,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		PageLoadTimeout: 60 * time.Second,
		ScriptTimeout:   60 * time.Second,
		ImplicitWait:    20 * time.Second,
	}
}

// Launcher 打开新的浏览器会话；每次登录/抓取各自独占一个会话。
type Launcher interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session 为一个已打开的浏览器会话。
// Close 可重复调用，但持有者应当且只应通过 defer 调用一次。
type Session interface {
	Options() Options
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// HTML 返回当前渲染后的完整 DOM
	HTML(ctx context.Context) (string, error)
	AddCookie(ctx context.Context, c model.Cookie) error
	Cookies(ctx context.Context) ([]model.Cookie, error)
	Close() error
}

// Document 读取会话当前 DOM 并交给 goquery 解析。
func Document(ctx context.Context, s Session) (*goquery.Document, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read dom: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dom: %w", err)
	}
	return doc, nil
}

// Find 在 ImplicitWait 内等待 selector 出现，返回全部匹配元素。
func Find(ctx context.Context, s Session, selector string) (*goquery.Selection, error) {
	_, sel, err := WaitFor(ctx, s, []string{selector}, s.Options().ImplicitWait, DefaultPollInterval)
	return sel, err
}

// WaitFor 按顺序探测 selectors，第一个匹配到至少一个元素的选择器胜出，
// 返回该选择器及其匹配结果。timeout 为 0 时只探测一次。
// 超时返回包装后的 ErrElementNotFound；读取 DOM 失败则原样返回（属传输错误）。
func WaitFor(ctx context.Context, s Session, selectors []string, timeout, interval time.Duration) (string, *goquery.Selection, error) {
	if len(selectors) == 0 {
		return "", nil, fmt.Errorf("wait for: no selectors: %w", ErrElementNotFound)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		doc, err := Document(ctx, s)
		if err != nil {
			return "", nil, err
		}
		for _, q := range selectors {
			if found := doc.Find(q); found.Length() > 0 {
				return q, found, nil
			}
		}
		remain := time.Until(deadline)
		if timeout <= 0 || remain <= 0 {
			return "", nil, fmt.Errorf("wait for %s: %w", strings.Join(selectors, "||"), ErrElementNotFound)
		}
		t := time.NewTimer(min(interval, remain))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", nil, ctx.Err()
		case <-t.C:
		}
	}
}

// InjectCookies 逐条写入 Cookie：缺 name/value 的跳过，domain 缺省为 defaultDomain、path 缺省为 "/"。
// 单条写入失败只记录警告并继续，返回成功写入的条数。
func InjectCookies(ctx context.Context, s Session, list []model.Cookie, defaultDomain string, log *logx.Logger) int {
	if log == nil {
		log = logx.Nop()
	}
	n := 0
	for _, c := range list {
		nc, ok := cookies.Normalize(c, defaultDomain)
		if !ok {
			log.Warnf("跳过无效 cookie（缺少 name 或 value）：%q", c.Name)
			continue
		}
		if err := s.AddCookie(ctx, nc); err != nil {
			if ctx.Err() != nil {
				return n
			}
			log.Warnf("添加 cookie 失败：%s 错误=%v", nc.Name, err)
			continue
		}
		n++
	}
	return n
}
