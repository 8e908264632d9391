// 包 fetch 封装 HTTP 客户端（代理/超时/重试），用于不打开浏览器的会话有效性探测。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tt-creator/internal/model"
)

// DefaultUserAgent 与浏览器会话保持一致，减少 403/反爬误判。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"

// Client 为带重试的 HTTP 客户端。
type Client struct {
	http *resty.Client
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	UserAgent  string
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	var httpProxy, httpsProxy *url.URL
	var err error
	if opts.ProxyHTTP != "" {
		if httpProxy, err = url.Parse(opts.ProxyHTTP); err != nil {
			return nil, fmt.Errorf("parse http proxy: %w", err)
		}
	}
	if opts.ProxyHTTPS != "" {
		if httpsProxy, err = url.Parse(opts.ProxyHTTPS); err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && httpsProxy != nil {
				return httpsProxy, nil
			}
			if req.URL.Scheme == "http" && httpProxy != nil {
				return httpProxy, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	cl := resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetRetryCount(opts.Retry).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 只对网络错误与 5xx 重试；401/403 是明确的会话结论
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{http: cl}, nil
}

// SessionState 为探测结论。
type SessionState string

const (
	SessionValid   SessionState = "valid"
	SessionExpired SessionState = "expired"
)

// Check 为一次探测的结果。
type Check struct {
	State      SessionState
	HTTPStatus int
	FinalURL   string
	CheckedAt  time.Time
}

// CheckSession 携带 Cookie 请求 target：被重定向到包含 loginMarker 的地址或返回 401/403 视为过期，
// 2xx 视为有效；其他状态码与网络错误（重试后）返回 error。只读，不修改任何存储。
func (c *Client) CheckSession(ctx context.Context, target string, list []model.Cookie, loginMarker string) (Check, error) {
	req := c.http.R().SetContext(ctx)
	for _, ck := range list {
		if ck.Name == "" {
			continue
		}
		req.SetCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	resp, err := req.Get(target)
	if err != nil {
		if ctx.Err() != nil {
			return Check{}, ctx.Err()
		}
		return Check{}, fmt.Errorf("get %s: %w", target, err)
	}
	out := Check{HTTPStatus: resp.StatusCode(), FinalURL: target, CheckedAt: time.Now()}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		out.FinalURL = raw.Request.URL.String()
	}
	switch {
	case loginMarker != "" && strings.Contains(out.FinalURL, loginMarker):
		out.State = SessionExpired
	case out.HTTPStatus == http.StatusUnauthorized || out.HTTPStatus == http.StatusForbidden:
		out.State = SessionExpired
	case out.HTTPStatus >= 200 && out.HTTPStatus < 300:
		out.State = SessionValid
	default:
		return out, fmt.Errorf("get %s: %w", target, &StatusError{Code: out.HTTPStatus})
	}
	return out, nil
}

// StatusError 为非预期的 HTTP 状态码。
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("http status: %d %s", e.Code, http.StatusText(e.Code)) }

// IsStatus 判断 err 是否为指定状态码的 StatusError。
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
