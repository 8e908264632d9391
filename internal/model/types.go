// 包 model 定义账号/Cookie/文章等数据模型。
package model

import "time"

// 账号状态。实际使用中为自由字符串，这里只列出程序自己写入的值。
const (
	StatusActive = "active"
)

// Cookie 为浏览器会话中的一条 Cookie，字段名沿用浏览器自动化的 JSON 约定。
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expiry   int64  `json:"expiry,omitempty"` // unix 秒；0 表示会话 Cookie
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// Account 表示一个已登录的创作者账号。
// Cookies 为 nil 时，要么库里没有 Cookie，要么数据损坏（CookiesCorrupt=true）。
type Account struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Cookies        []Cookie  `json:"cookies"`
	CookiesCorrupt bool      `json:"cookies_corrupt,omitempty"`
	Status         string    `json:"status"`
	LastLogin      time.Time `json:"last_login"`
}

// Article 为一次抓取得到的文章统计，计数保持页面原始文本。
type Article struct {
	Title        string `json:"title"`
	PublishTime  string `json:"publish_time"`
	DiggCount    string `json:"digg_count"`
	ShowCount    string `json:"show_count"`
	ReadCount    string `json:"read_count"`
	CommentCount string `json:"comment_count"`
}

// 抓取字段缺失时的默认值。
const (
	DefaultPublishTime = "-"
	DefaultCount       = "0"
)

// Export 为导出文件 articles.json 的顶层结构。
type Export struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Accounts  []AccountArticles `json:"accounts"`
}

// AccountArticles 为单个账号最近一次抓取的结果。
type AccountArticles struct {
	Username  string    `json:"username"`
	FetchedAt time.Time `json:"fetched_at"`
	Error     string    `json:"error,omitempty"`
	Articles  []Article `json:"articles"`
}
