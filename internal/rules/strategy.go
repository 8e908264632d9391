package rules

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy 从一个元素中提取字段值；ok=false 表示本策略未命中，交给下一个策略。
type Strategy func(scope *goquery.Selection) (string, bool)

// Split 将 "a||b||c" 拆为有序的选择器列表，忽略空项。
func Split(expr string) []string {
	var out []string
	for _, p := range strings.Split(expr, "||") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Expr 将表达式按 "||" 拆成策略列表。单项语法：
// - 文本：".name" 或 "."（取当前元素文本）
// - 属性："a@href"/"@data-id"（当前元素属性）
func Expr(expr string) []Strategy {
	parts := Split(expr)
	out := make([]Strategy, 0, len(parts))
	for _, p := range parts {
		out = append(out, single(p))
	}
	return out
}

// single 解析单个表达式：文本或属性读取，空值视为未命中。
func single(expr string) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		if expr == "." {
			return nonEmpty(scope.Text())
		}
		if at := strings.Index(expr, "@"); at != -1 {
			sel := strings.TrimSpace(expr[:at])
			attr := strings.TrimSpace(expr[at+1:])
			el := scope
			if sel != "" {
				el = scope.Find(sel).First()
			}
			if el.Length() == 0 {
				return "", false
			}
			val, _ := el.Attr(attr)
			return nonEmpty(val)
		}
		el := scope.Find(expr).First()
		if el.Length() == 0 {
			return "", false
		}
		return nonEmpty(el.Text())
	}
}

// Labeled 在 list 选中的统计项中查找包含 label 的一项，去掉文字后返回数值部分。
func Labeled(list, label string) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		if list == "" || label == "" {
			return "", false
		}
		var val string
		var found bool
		scope.Find(list).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := Clean(s.Text())
			if !strings.Contains(text, label) {
				return true
			}
			val, found = nonEmpty(strings.ReplaceAll(text, label, ""))
			return !found
		})
		return val, found
	}
}

// countPattern 匹配计数文本，如 "88"、"1,024"、"1.2万"、"3k"。
var countPattern = regexp.MustCompile(`^\d[\d,.]*\s*(万|亿|[kKwW])?$`)

// Numeric 只接受像计数的值；选择器误中"评论管理"之类的文字时视为未命中。
func Numeric(st Strategy) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		v, ok := st(scope)
		if !ok || !countPattern.MatchString(v) {
			return "", false
		}
		return v, true
	}
}

// First 依次尝试策略，返回第一个命中的值。
func First(scope *goquery.Selection, strategies ...Strategy) (string, bool) {
	for _, st := range strategies {
		if v, ok := st(scope); ok {
			return v, true
		}
	}
	return "", false
}

// Or 与 First 相同，但全部未命中时返回默认值。
func Or(scope *goquery.Selection, def string, strategies ...Strategy) string {
	if v, ok := First(scope, strategies...); ok {
		return v
	}
	return def
}

// Clean 折叠空白字符，页面文本常带换行与缩进。
func Clean(s string) string { return strings.Join(strings.Fields(s), " ") }

func nonEmpty(s string) (string, bool) {
	s = Clean(s)
	return s, s != ""
}
