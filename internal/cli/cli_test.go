package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tt-creator/internal/app"
	"tt-creator/internal/browser/browsertest"
	"tt-creator/internal/config"
	"tt-creator/internal/fetch"
	"tt-creator/internal/logx"
	"tt-creator/internal/store"
	"tt-creator/internal/task"
)

const articlesPage = `<body>
<div class="article-card"><div class="title">标题一</div><span class="create-time">05-01 08:00</span>
<ul class="count"><li>展现 300</li><li>阅读 42</li></ul></div>
</body>`

// testOpener 使用脚本化浏览器，其余依赖按配置真实构造。
func testOpener(cfg *config.Config, log *logx.Logger) (*app.App, error) {
	s, err := store.OpenSQLite(cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	cfg.Scrape.WaitTimeout = 10 * time.Millisecond
	l := &browsertest.Launcher{NewSession: func() *browsertest.Session {
		return &browsertest.Session{Pages: map[string]string{cfg.Scrape.ArticlesURL: articlesPage}}
	}}
	return app.New(app.Deps{Config: cfg, Log: log, Store: s, Launcher: l})
}

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--db", db, "--log-level", "none"}, args...)
	err := Run(context.Background(), full, &out, &errOut, testOpener)
	return out.String(), err
}

func TestCLI_ImportListArticlesRemove(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "accounts.db")
	cookieFile := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(cookieFile, []byte(`[{"name":"sessionid","value":"v"}]`), 0o644))

	out, err := run(t, db, "accounts", "import", "alice", "--file", cookieFile)
	require.NoError(t, err)
	require.Contains(t, out, "alice")

	_, err = run(t, db, "accounts", "import", "alice", "--file", cookieFile)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.True(t, strings.HasPrefix(describe(err), "账号已存在"))

	out, err = run(t, db, "accounts", "list")
	require.NoError(t, err)
	require.Contains(t, out, "alice")
	require.Contains(t, out, "active")

	exportPath := filepath.Join(dir, "articles.json")
	out, err = run(t, db, "articles", "alice", "--export", exportPath)
	require.NoError(t, err)
	require.Contains(t, out, "标题一")
	require.Contains(t, out, "300")
	require.FileExists(t, exportPath)

	out, err = run(t, db, "accounts", "remove", "alice", "ghost")
	require.NoError(t, err)
	require.Contains(t, out, "已删除：alice")
	require.Contains(t, out, "不存在：ghost")
}

func TestCLI_ArticlesErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "accounts.db")
	_, err := run(t, db, "articles", "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = run(t, db, "articles")
	require.Error(t, err, "username is required without --all")

	out, err := run(t, db, "articles", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "账号")
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "账号没有可用的 Cookie，请重新登录", describe(task.ErrNoCookies))
	require.Equal(t, "已取消", describe(context.Canceled))
	require.Equal(t, os.ErrClosed.Error(), describe(os.ErrClosed))

	limited := fmt.Errorf("get https://mp.test: %w", &fetch.StatusError{Code: http.StatusTooManyRequests})
	require.Equal(t, "请求过于频繁，请稍后再检查", describe(limited))
	other := fmt.Errorf("get https://mp.test: %w", &fetch.StatusError{Code: http.StatusBadGateway})
	require.Equal(t, other.Error(), describe(other))
}
