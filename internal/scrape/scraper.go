// 包 scrape 负责抓取创作者后台的文章列表：
// - 打开浏览器并注入账号 Cookie
// - 按选择器回退链等待文章列表出现
// - 逐项提取标题/发布时间/四项计数，缺失字段取默认值
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tt-creator/internal/browser"
	"tt-creator/internal/logx"
	"tt-creator/internal/model"
	"tt-creator/internal/rules"
)

// Step 标识抓取过程中的阶段，用于定位失败位置。
type Step string

const (
	StepOpen     Step = "open"
	StepHome     Step = "home"
	StepArticles Step = "articles"
	StepWait     Step = "wait"
	StepExtract  Step = "extract"
)

// Error 为抓取过程中的传输类失败。
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("scrape %s: %v", e.Step, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	HomeURL      string
	ArticlesURL  string
	CookieDomain string
	// WaitTimeout 为等待首选选择器的上限
	WaitTimeout time.Duration
	// FallbackWait 为备选选择器的等待上限，0 表示只探测一次
	FallbackWait time.Duration
	PollInterval time.Duration
	Browser      browser.Options
}

func DefaultOptions() Options {
	return Options{
		HomeURL:      "https://mp.toutiao.com",
		ArticlesURL:  "https://mp.toutiao.com/profile_v4/graphic/articles",
		CookieDomain: ".toutiao.com",
		WaitTimeout:  20 * time.Second,
		PollInterval: browser.DefaultPollInterval,
		Browser:      browser.DefaultOptions(),
	}
}

// Scraper 每次 Fetch 打开独立的浏览器会话，互不共享。
type Scraper struct {
	launcher browser.Launcher
	opts     Options
	page     *rules.ArticlesPage
	log      *logx.Logger

	title   []rules.Strategy
	pubTime []rules.Strategy
	digg    []rules.Strategy
	show    []rules.Strategy
	read    []rules.Strategy
	comment []rules.Strategy
}

// New 创建抓取器；page 为 nil 时使用内置规则。
func New(l browser.Launcher, opts Options, page *rules.ArticlesPage, log *logx.Logger) *Scraper {
	if log == nil {
		log = logx.Nop()
	}
	if page == nil {
		page = rules.Default().Articles
	}
	def := DefaultOptions()
	if opts.HomeURL == "" {
		opts.HomeURL = def.HomeURL
	}
	if opts.ArticlesURL == "" {
		opts.ArticlesURL = def.ArticlesURL
	}
	if opts.CookieDomain == "" {
		opts.CookieDomain = def.CookieDomain
	}
	counter := func(label, expr string) []rules.Strategy {
		list := append([]rules.Strategy{rules.Labeled(page.Stats, label)}, rules.Expr(expr)...)
		for i, st := range list {
			list[i] = rules.Numeric(st)
		}
		return list
	}
	return &Scraper{
		launcher: l,
		opts:     opts,
		page:     page,
		log:      log,
		title:    rules.Expr(page.Title),
		pubTime:  rules.Expr(page.Time),
		digg:     counter(page.Labels.Digg, page.Digg),
		show:     counter(page.Labels.Show, page.Show),
		read:     counter(page.Labels.Read, page.Read),
		comment:  counter(page.Labels.Comment, page.Comment),
	}
}

// Fetch 使用给定 Cookie 抓取文章列表。列表选择器全部未命中时返回空切片与 nil 错误。
// 会话在所有退出路径上关闭（包括 panic）；ctx 在逐项提取之间检查。
func (s *Scraper) Fetch(ctx context.Context, list []model.Cookie) ([]model.Article, error) {
	sess, err := s.launcher.Open(ctx, s.opts.Browser)
	if err != nil {
		return nil, &Error{Step: StepOpen, Err: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.log.Warnf("关闭浏览器失败：%v", err)
		}
	}()

	// Cookie 只能写入已打开的站点，先访问首页
	if err := sess.Navigate(ctx, s.opts.HomeURL); err != nil {
		return nil, &Error{Step: StepHome, Err: err}
	}
	n := browser.InjectCookies(ctx, sess, list, s.opts.CookieDomain, s.log)
	s.log.Debugf("已注入 cookies：%d/%d", n, len(list))
	if err := ctx.Err(); err != nil {
		return nil, &Error{Step: StepHome, Err: err}
	}

	s.log.Infof("访问文章列表页面：%s", s.opts.ArticlesURL)
	if err := sess.Navigate(ctx, s.opts.ArticlesURL); err != nil {
		return nil, &Error{Step: StepArticles, Err: err}
	}

	items, err := s.waitItems(ctx, sess)
	if errors.Is(err, browser.ErrElementNotFound) {
		s.log.Warnf("未找到任何文章元素")
		return []model.Article{}, nil
	}
	if err != nil {
		return nil, &Error{Step: StepWait, Err: err}
	}
	return s.extract(ctx, items)
}

// waitItems 先等待首选选择器，超时后按顺序探测备选选择器。
func (s *Scraper) waitItems(ctx context.Context, sess browser.Session) (*goquery.Selection, error) {
	chain := rules.Split(s.page.Item)
	if len(chain) == 0 {
		return nil, browser.ErrElementNotFound
	}
	q, sel, err := browser.WaitFor(ctx, sess, chain[:1], s.opts.WaitTimeout, s.opts.PollInterval)
	if err == nil {
		s.log.Debugf("首选选择器命中：%s（%d 项）", q, sel.Length())
		return sel, nil
	}
	if !errors.Is(err, browser.ErrElementNotFound) || len(chain) == 1 {
		return nil, err
	}
	s.log.Warnf("等待文章列表超时，尝试其他选择器...")
	q, sel, err = browser.WaitFor(ctx, sess, chain[1:], s.opts.FallbackWait, s.opts.PollInterval)
	if err != nil {
		return nil, err
	}
	s.log.Infof("使用备用选择器成功：%s（%d 项）", q, sel.Length())
	return sel, nil
}

// extract 按文档顺序逐项解析；缺标题的项跳过，其余字段各自回退到默认值。
func (s *Scraper) extract(ctx context.Context, items *goquery.Selection) ([]model.Article, error) {
	out := make([]model.Article, 0, items.Length())
	for i := range items.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Step: StepExtract, Err: err}
		}
		el := items.Eq(i)
		title, ok := rules.First(el, s.title...)
		if !ok {
			s.log.Warnf("解析文章元素失败：第 %d 项缺少标题", i+1)
			continue
		}
		a := model.Article{
			Title:        title,
			PublishTime:  rules.Or(el, model.DefaultPublishTime, s.pubTime...),
			DiggCount:    rules.Or(el, model.DefaultCount, s.digg...),
			ShowCount:    rules.Or(el, model.DefaultCount, s.show...),
			ReadCount:    rules.Or(el, model.DefaultCount, s.read...),
			CommentCount: rules.Or(el, model.DefaultCount, s.comment...),
		}
		s.log.Debugf("解析文章：%+v", a)
		out = append(out, a)
	}
	s.log.Infof("找到 %d 个文章元素，解析成功 %d 篇", items.Length(), len(out))
	return out, nil
}
