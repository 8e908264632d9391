// 包 app 为展示层（命令行）提供唯一入口：账号管理、登录、抓取与导出。
// 展示层只调用这里的方法，不直接接触存储或浏览器。
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"tt-creator/internal/browser"
	"tt-creator/internal/config"
	"tt-creator/internal/export"
	"tt-creator/internal/fetch"
	"tt-creator/internal/login"
	"tt-creator/internal/logx"
	"tt-creator/internal/model"
	"tt-creator/internal/rules"
	"tt-creator/internal/scrape"
	"tt-creator/internal/store"
	"tt-creator/internal/task"
)

// Deps 为 App 的依赖；Open 会按配置构造它们，测试可直接注入。
type Deps struct {
	Config   *config.Config
	Log      *logx.Logger
	Store    *store.SQLite
	Launcher browser.Launcher
	Rules    *rules.Rules
	Check    *fetch.Client
}

type App struct {
	cfg      *config.Config
	log      *logx.Logger
	store    *store.SQLite
	launcher browser.Launcher
	preset   rules.Preset
	check    *fetch.Client
	runner   *task.Runner
}

// Open 按配置打开数据库、加载规则并创建浏览器启动器。
func Open(cfg *config.Config, log *logx.Logger) (*App, error) {
	s, err := store.OpenSQLite(cfg.Database.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	var rl *rules.Rules
	if cfg.RulesPath != "" {
		r, err := rules.Load(cfg.RulesPath)
		switch {
		case err == nil:
			rl = r
		case errors.Is(err, os.ErrNotExist):
			log.Debugf("规则文件不存在，使用内置规则：%s", cfg.RulesPath)
		default:
			log.Warnf("加载规则失败，使用内置规则：%v", err)
		}
	}
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.Check.Timeout,
		Retry:      cfg.Check.Retry,
		UserAgent:  cfg.Browser.UserAgent,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("http client: %w", err)
	}
	return New(Deps{Config: cfg, Log: log, Store: s, Launcher: browser.NewChrome(log), Rules: rl, Check: cl})
}

// New 以给定依赖创建 App。
func New(d Deps) (*App, error) {
	if d.Config == nil || d.Store == nil || d.Launcher == nil {
		return nil, errors.New("app: config, store and launcher are required")
	}
	if d.Log == nil {
		d.Log = logx.Nop()
	}
	a := &App{
		cfg:      d.Config,
		log:      d.Log,
		store:    d.Store,
		launcher: d.Launcher,
		preset:   d.Rules.Resolve(d.Config.Theme),
		check:    d.Check,
	}
	sc := scrape.New(a.launcher, a.scrapeOptions(), a.preset.Articles, a.log)
	a.runner = task.New(a.store, sc, task.Options{
		TaskTimeout: a.cfg.Scrape.TaskTimeout,
		Concurrency: a.cfg.Scrape.Concurrency,
	}, a.log)
	return a, nil
}

// Close 等待后台抓取结束后关闭数据库。
func (a *App) Close() error {
	a.runner.Wait()
	return a.store.Close()
}

// browserOptions 登录与抓取共用同一份浏览器参数（包括证书设置）。
func (a *App) browserOptions() browser.Options {
	b := a.cfg.Browser
	return browser.Options{
		ExecPath:             b.ExecPath,
		Headless:             b.Headless,
		WindowWidth:          b.WindowWidth,
		WindowHeight:         b.WindowHeight,
		UserAgent:            b.UserAgent,
		AllowAutomationFlags: b.AllowAutomationFlags,
		IgnoreCertErrors:     b.IgnoreCertErrors,
		PageLoadTimeout:      b.PageLoadTimeout,
		ScriptTimeout:        b.ScriptTimeout,
		ImplicitWait:         b.ImplicitWait,
	}
}

func (a *App) loginOptions() login.Options {
	l := a.cfg.Login
	return login.Options{
		URL:          l.URL,
		Marker:       l.Marker,
		PollInterval: l.PollInterval,
		Deadline:     l.Deadline,
		Settle:       l.Settle,
		NameWait:     l.NameWait,
		Browser:      a.browserOptions(),
	}
}

func (a *App) scrapeOptions() scrape.Options {
	s := a.cfg.Scrape
	return scrape.Options{
		HomeURL:      s.HomeURL,
		ArticlesURL:  s.ArticlesURL,
		CookieDomain: s.CookieDomain,
		WaitTimeout:  s.WaitTimeout,
		FallbackWait: s.FallbackWait,
		PollInterval: s.PollInterval,
		Browser:      a.browserOptions(),
	}
}

// ListAccounts 返回全部账号；Cookie 损坏的账号也会列出。
func (a *App) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return a.store.List(ctx)
}

// AddAccount 打开浏览器等待用户登录，成功后保存账号（已存在则替换），返回用户名。
func (a *App) AddAccount(ctx context.Context) (string, error) {
	f := login.New(a.launcher, a.loginOptions(), a.preset.Login, a.log)
	res, err := f.Run(ctx)
	if err != nil {
		a.log.Warnf("登录未完成（%s）：%v", f.State(), err)
		return "", err
	}
	if len(res.Cookies) == 0 {
		return "", fmt.Errorf("login %s: %w", res.Username, task.ErrNoCookies)
	}
	if err := a.store.Replace(ctx, res.Username, res.Cookies); err != nil {
		return "", fmt.Errorf("save account: %w", err)
	}
	a.log.Infof("账号添加成功：%s", res.Username)
	return res.Username, nil
}

// ImportAccount 以已有的 Cookie 文本新增账号（不打开浏览器）。
func (a *App) ImportAccount(ctx context.Context, username, raw string) error {
	if err := a.store.AddRaw(ctx, username, raw); err != nil {
		return err
	}
	a.log.Infof("账号导入成功：%s", username)
	return nil
}

// RemoveAccount 删除账号，返回是否确实存在。
func (a *App) RemoveAccount(ctx context.Context, username string) (bool, error) {
	ok, err := a.store.Remove(ctx, username)
	if err != nil {
		return false, err
	}
	a.runner.Buffer().Forget(username)
	return ok, nil
}

// RepairAccounts 删除 Cookie 数据损坏的账号，返回删除条数。
func (a *App) RepairAccounts(ctx context.Context) (int, error) {
	return a.store.Repair(ctx)
}

// CheckAccount 不打开浏览器，直接用 HTTP 请求判断账号 Cookie 是否仍然有效。
func (a *App) CheckAccount(ctx context.Context, username string) (fetch.Check, error) {
	if a.check == nil {
		return fetch.Check{}, errors.New("session check is not configured")
	}
	acc, err := a.store.Get(ctx, username)
	if err != nil {
		return fetch.Check{}, err
	}
	if acc.CookiesCorrupt || len(acc.Cookies) == 0 {
		return fetch.Check{}, fmt.Errorf("%w: %s", task.ErrNoCookies, username)
	}
	return a.check.CheckSession(ctx, a.cfg.Check.URL, acc.Cookies, a.cfg.Login.Marker)
}

// FetchArticles 在后台抓取账号文章，结果通过通道交付（恰好一个）。
func (a *App) FetchArticles(ctx context.Context, username string) <-chan task.Result {
	return a.runner.Fetch(ctx, username)
}

// FetchAll 抓取全部账号。
func (a *App) FetchAll(ctx context.Context) ([]task.Result, error) {
	return a.runner.FetchAll(ctx)
}

// Watch 定时抓取全部账号，直到 ctx 结束；exportPath 非空时每轮结束后导出。
func (a *App) Watch(ctx context.Context, interval time.Duration, exportPath string) error {
	if interval <= 0 {
		interval = a.cfg.Scrape.WatchInterval
	}
	a.log.Infof("定时抓取已启动，间隔 %s", interval)
	return a.runner.Watch(ctx, interval, func(results []task.Result) {
		if exportPath == "" {
			return
		}
		if err := a.Export(exportPath); err != nil {
			a.log.Errorf("导出失败：%v", err)
			return
		}
		a.log.Infof("已导出 %d 个账号到 %s", len(results), exportPath)
	})
}

// Export 将各账号最近一次抓取结果写入 JSON 文件。
func (a *App) Export(path string) error {
	return export.ToJSON(a.runner.Buffer().Snapshot(), path)
}
