// 包 task 负责抓取任务的编排：
// - 后台执行单个账号的抓取，结果通过通道交付，调用方不被阻塞
// - 同一账号同一时间只允许一个抓取
// - 批量抓取全部账号与定时轮询
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tt-creator/internal/logx"
	"tt-creator/internal/model"
)

var (
	ErrNoCookies   = errors.New("account has no usable cookies")
	ErrTaskTimeout = errors.New("task timeout")
	ErrBusy        = errors.New("fetch already in progress for account")
)

// Accounts 为任务需要的账号读取能力（store.SQLite 满足该接口）。
type Accounts interface {
	Get(ctx context.Context, username string) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
}

// Fetcher 使用 Cookie 抓取文章（scrape.Scraper 满足该接口）。
type Fetcher interface {
	Fetch(ctx context.Context, cookies []model.Cookie) ([]model.Article, error)
}

// Result 为一次抓取的结果，Err 非空时 Articles 为 nil。
type Result struct {
	Username  string
	Articles  []model.Article
	Err       error
	FetchedAt time.Time
}

type Options struct {
	TaskTimeout time.Duration
	Concurrency int
}

// Runner 任务执行器，持有账号存储/抓取器/结果缓存。
type Runner struct {
	accounts Accounts
	fetcher  Fetcher
	opts     Options
	log      *logx.Logger
	buf      *Buffer

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// New 创建 Runner。
func New(a Accounts, f Fetcher, opts Options, log *logx.Logger) *Runner {
	if log == nil {
		log = logx.Nop()
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 120 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		accounts: a,
		fetcher:  f,
		opts:     opts,
		log:      log,
		buf:      NewBuffer(),
		inflight: make(map[string]struct{}),
	}
}

// Buffer 返回最近结果的缓存。
func (r *Runner) Buffer() *Buffer { return r.buf }

// Fetch 立即返回；恰好交付一个 Result 后通道关闭。
// 同一账号已有抓取在进行时，直接交付 ErrBusy。
func (r *Runner) Fetch(ctx context.Context, username string) <-chan Result {
	ch := make(chan Result, 1)
	if !r.acquire(username) {
		ch <- Result{Username: username, Err: fmt.Errorf("%w: %s", ErrBusy, username), FetchedAt: time.Now()}
		close(ch)
		return ch
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(ch)
		res := r.run(ctx, username)
		// 抓取已返回（会话已关闭），释放后再交付结果
		r.release(username)
		r.buf.Put(res)
		ch <- res
	}()
	return ch
}

func (r *Runner) acquire(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[username]; ok {
		return false
	}
	r.inflight[username] = struct{}{}
	return true
}

func (r *Runner) release(username string) {
	r.mu.Lock()
	delete(r.inflight, username)
	r.mu.Unlock()
}

// run 执行一次抓取：读取账号→校验 Cookie→带超时抓取。
func (r *Runner) run(ctx context.Context, username string) (res Result) {
	log := r.log.With("account", username)
	res.Username = username
	defer func() {
		res.FetchedAt = time.Now()
		if p := recover(); p != nil {
			res.Articles = nil
			res.Err = fmt.Errorf("fetch %s: panic: %v", username, p)
			log.Errorf("抓取异常：%v", p)
		}
	}()

	a, err := r.accounts.Get(ctx, username)
	if err != nil {
		res.Err = fmt.Errorf("load account: %w", err)
		return res
	}
	if a.CookiesCorrupt || len(a.Cookies) == 0 {
		res.Err = fmt.Errorf("%w: %s", ErrNoCookies, username)
		log.Warnf("账号没有可用的 cookies，跳过抓取")
		return res
	}

	tctx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	defer cancel()
	start := time.Now()
	list, err := r.fetcher.Fetch(tctx, a.Cookies)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrTaskTimeout, r.opts.TaskTimeout, err)
		}
		res.Err = err
		log.Warnf("抓取失败：%v", err)
		return res
	}
	res.Articles = list
	log.Infof("抓取完成：%d 篇，用时 %s", len(list), time.Since(start).Round(time.Millisecond))
	return res
}

// FetchAll 抓取全部账号，并发数受 Concurrency 限制；单个账号失败只记录，不中断其他账号。
// 结果顺序与账号列表一致。
func (r *Runner) FetchAll(ctx context.Context) ([]Result, error) {
	list, err := r.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	r.log.Infof("开始抓取全部账号：%d 个，并发=%d", len(list), r.opts.Concurrency)
	results := make([]Result, len(list))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, a := range list {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Username: a.Username, Err: err, FetchedAt: time.Now()}
				return nil
			}
			results[i] = <-r.Fetch(ctx, a.Username)
			return nil
		})
	}
	_ = g.Wait()
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.log.Infof("全部账号抓取结束：成功=%d 失败=%d", len(results)-failed, failed)
	return results, ctx.Err()
}

// Watch 立即执行一轮 FetchAll，之后每隔 interval 执行一轮，直到 ctx 结束。
// 每轮结束后调用 onRound（可为 nil）。
func (r *Runner) Watch(ctx context.Context, interval time.Duration, onRound func([]Result)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be > 0, got %s", interval)
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		results, err := r.FetchAll(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Errorf("本轮抓取失败：%v", err)
		}
		if onRound != nil && ctx.Err() == nil {
			onRound(results)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Wait 等待所有后台抓取结束。
func (r *Runner) Wait() { r.wg.Wait() }
