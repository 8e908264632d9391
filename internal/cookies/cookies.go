// 包 cookies 负责 Cookie 集合的解析、序列化与注入前的归一化。
//
// 存储格式为 JSON 数组，每项至少包含 name/value。为兼容旧数据，解析时还接受：
// - 单个 Cookie 对象（视为只有一项的数组）
// - name→value 形式的映射（按 name 排序展开）
// - 数组元素本身是 JSON 字符串（旧版本二次编码的数据）
package cookies

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"tt-creator/internal/model"
)

// 注入时缺省的域名与路径。
const (
	DefaultDomain = ".toutiao.com"
	DefaultPath   = "/"
)

// ErrInvalidFormat 表示文本无法解析为 Cookie 集合。
var ErrInvalidFormat = errors.New("invalid cookie format")

// wire 为解码用的中间结构：expiry 可能是整数也可能是浮点数（CDP 返回秒的小数）。
type wire struct {
	Name     *string     `json:"name"`
	Value    *string     `json:"value"`
	Domain   string      `json:"domain"`
	Path     string      `json:"path"`
	Expiry   json.Number `json:"expiry"`
	Secure   bool        `json:"secure"`
	HTTPOnly bool        `json:"httpOnly"`
	SameSite string      `json:"sameSite"`
}

// Parse 将文本解析为 Cookie 集合；无法识别的结构返回 ErrInvalidFormat。
func Parse(raw []byte) ([]model.Cookie, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		out := make([]model.Cookie, 0, len(items))
		for i, it := range items {
			c, err := parseItem(it)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidFormat, i, err)
			}
			out = append(out, c)
		}
		return out, nil
	case '{':
		return parseObject(raw)
	default:
		return nil, fmt.Errorf("%w: expect array or object", ErrInvalidFormat)
	}
}

// ParseString 为 Parse 的字符串版本。
func ParseString(s string) ([]model.Cookie, error) { return Parse([]byte(s)) }

// parseItem 解析数组中的单项：对象或二次编码的字符串。
func parseItem(raw json.RawMessage) (model.Cookie, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return model.Cookie{}, err
		}
		raw = []byte(inner)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return model.Cookie{}, errors.New("cookie item must be an object")
	}
	return decodeCookie(raw)
}

// parseObject 区分单个 Cookie 对象与 name→value 映射。
func parseObject(raw []byte) ([]model.Cookie, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if _, ok := probe["name"]; ok {
		c, err := decodeCookie(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		return []model.Cookie{c}, nil
	}
	names := make([]string, 0, len(probe))
	for k := range probe {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]model.Cookie, 0, len(names))
	for _, name := range names {
		var v string
		if err := json.Unmarshal(probe[name], &v); err != nil {
			return nil, fmt.Errorf("%w: value of %q must be a string", ErrInvalidFormat, name)
		}
		out = append(out, model.Cookie{Name: name, Value: v})
	}
	return out, nil
}

func decodeCookie(raw []byte) (model.Cookie, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Cookie{}, err
	}
	c := model.Cookie{
		Domain:   w.Domain,
		Path:     w.Path,
		Secure:   w.Secure,
		HTTPOnly: w.HTTPOnly,
		SameSite: w.SameSite,
	}
	if w.Name != nil {
		c.Name = *w.Name
	}
	if w.Value != nil {
		c.Value = *w.Value
	}
	if w.Expiry != "" {
		f, err := strconv.ParseFloat(w.Expiry.String(), 64)
		if err != nil {
			return model.Cookie{}, fmt.Errorf("expiry: %w", err)
		}
		if f > 0 {
			c.Expiry = int64(f)
		}
	}
	return c, nil
}

// Serialize 将 Cookie 集合编码为存储文本；nil 编码为 "[]"。
func Serialize(list []model.Cookie) (string, error) {
	if list == nil {
		list = []model.Cookie{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal cookies: %w", err)
	}
	return string(b), nil
}

// Valid 判断存储文本能否解析。
func Valid(s string) bool {
	_, err := ParseString(s)
	return err == nil
}

// Normalize 为注入浏览器做准备：缺 name 或 value 的返回 ok=false（调用方跳过），
// domain/path 缺省时补齐。
func Normalize(c model.Cookie, defaultDomain string) (model.Cookie, bool) {
	if c.Name == "" || c.Value == "" {
		return c, false
	}
	if defaultDomain == "" {
		defaultDomain = DefaultDomain
	}
	if c.Domain == "" {
		c.Domain = defaultDomain
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	return c, true
}
