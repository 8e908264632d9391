package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"tt-creator/internal/browser"
	"tt-creator/internal/cookies"
	"tt-creator/internal/fetch"
	"tt-creator/internal/login"
	"tt-creator/internal/model"
	"tt-creator/internal/store"
	"tt-creator/internal/task"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderAccounts(w io.Writer, list []model.Account) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "用户名", "状态", "最后登录", "Cookies"})
	for _, a := range list {
		ck := strconv.Itoa(len(a.Cookies))
		if a.CookiesCorrupt {
			ck = "损坏"
		}
		last := "-"
		if !a.LastLogin.IsZero() {
			last = a.LastLogin.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{a.ID, a.Username, a.Status, last, ck})
	}
	t.AppendFooter(table.Row{"", "共 " + strconv.Itoa(len(list)) + " 个"})
	t.Render()
}

func renderArticles(w io.Writer, list []model.Article) {
	t := newTable(w)
	t.AppendHeader(table.Row{"标题", "发布时间", "展现", "阅读", "点赞", "评论"})
	for _, a := range list {
		t.AppendRow(table.Row{a.Title, a.PublishTime, a.ShowCount, a.ReadCount, a.DiggCount, a.CommentCount})
	}
	t.Render()
}

func renderResults(w io.Writer, results []task.Result) {
	t := newTable(w)
	t.AppendHeader(table.Row{"账号", "文章数", "结果"})
	for _, r := range results {
		status := "成功"
		if r.Err != nil {
			status = describe(r.Err)
		}
		t.AppendRow(table.Row{r.Username, len(r.Articles), status})
	}
	t.Render()
}

// describe 将常见错误转换为面向用户的提示，其余错误原样输出。
func describe(err error) string {
	var le *login.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "账号不存在：" + err.Error()
	case errors.Is(err, store.ErrAlreadyExists):
		return "账号已存在：" + err.Error()
	case errors.Is(err, store.ErrInvalidCookieFormat), errors.Is(err, cookies.ErrInvalidFormat):
		return "Cookie 格式错误：" + err.Error()
	case errors.Is(err, task.ErrNoCookies):
		return "账号没有可用的 Cookie，请重新登录"
	case errors.Is(err, task.ErrBusy):
		return "该账号正在抓取中"
	case errors.Is(err, task.ErrTaskTimeout):
		return "抓取超时：" + err.Error()
	case errors.Is(err, login.ErrLoginTimeout):
		return "登录超时，请重试"
	case errors.Is(err, login.ErrUsernameNotFound):
		return "登录成功但未能识别用户名"
	case errors.As(err, &le):
		return "登录失败：" + err.Error()
	case fetch.IsStatus(err, http.StatusTooManyRequests):
		return "请求过于频繁，请稍后再检查"
	case fetch.IsStatus(err, http.StatusNotFound):
		return "检查地址不存在，请确认 CHECK.url"
	case errors.Is(err, browser.ErrLaunchTimeout):
		return "浏览器启动超时，请检查 BROWSER.exec_path"
	case errors.Is(err, browser.ErrNavigationTimeout):
		return "页面加载超时：" + err.Error()
	case errors.Is(err, context.Canceled):
		return "已取消"
	default:
		return err.Error()
	}
}
