package task

import (
	"sort"
	"sync"

	"tt-creator/internal/model"
)

// Buffer 在内存中保存每个账号最近一次的抓取结果，供导出使用。
type Buffer struct {
	mu       sync.Mutex
	accounts map[string]model.AccountArticles // key: username
}

func NewBuffer() *Buffer {
	return &Buffer{accounts: make(map[string]model.AccountArticles)}
}

// Put 记录一次结果。失败的结果保留上一次成功抓到的文章，只更新错误信息。
func (b *Buffer) Put(r Result) {
	if r.Username == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.accounts[r.Username]
	cur := model.AccountArticles{Username: r.Username, FetchedAt: r.FetchedAt, Articles: r.Articles}
	if r.Err != nil {
		cur.Error = r.Err.Error()
		cur.Articles = prev.Articles
		cur.FetchedAt = prev.FetchedAt
	}
	if cur.Articles == nil {
		cur.Articles = []model.Article{}
	}
	b.accounts[r.Username] = cur
}

// Forget 移除账号（账号被删除时调用）。
func (b *Buffer) Forget(username string) {
	b.mu.Lock()
	delete(b.accounts, username)
	b.mu.Unlock()
}

// Snapshot 返回按用户名排序的副本。
func (b *Buffer) Snapshot() []model.AccountArticles {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.AccountArticles, 0, len(b.accounts))
	for _, v := range b.accounts {
		v.Articles = append([]model.Article{}, v.Articles...)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
