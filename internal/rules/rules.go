// 包 rules 负责加载并提供页面解析规则（rules.yaml），
// 以预设名（如 default）组织 CSS 选择器，用于创作者后台文章列表与登录页解析。
package rules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules 表示全部规则集合：键为预设名，值为具体规则。
type Rules struct {
	Presets map[string]Preset `yaml:",inline"`
}

// Preset 为单个预设的解析规则集合；缺省的部分由内置默认规则补齐。
type Preset struct {
	Articles *ArticlesPage `yaml:"articles"`
	Login    *LoginPage    `yaml:"login"`
}

// ArticlesPage 描述文章列表页的选择器：
// - item：每篇文章的容器，"||" 之前为首选，之后按顺序作为备选
// - title/time：取文本或属性（支持 sel@attr、@attr、"."）
// - stats：统计项列表，按 labels 中的文字识别各计数
// - digg/show/read/comment：按标签识别失败时的备用表达式
type ArticlesPage struct {
	Item    string     `yaml:"item"`
	Title   string     `yaml:"title"`
	Time    string     `yaml:"time"`
	Stats   string     `yaml:"stats"`
	Labels  StatLabels `yaml:"labels"`
	Digg    string     `yaml:"digg"`
	Show    string     `yaml:"show"`
	Read    string     `yaml:"read"`
	Comment string     `yaml:"comment"`
}

// StatLabels 为统计项中用于识别计数的文字。
type StatLabels struct {
	Digg    string `yaml:"digg"`
	Show    string `yaml:"show"`
	Read    string `yaml:"read"`
	Comment string `yaml:"comment"`
}

// LoginPage 描述登录后读取显示名的选择器：
// - name：CSS 优先，随后是按 class 子串匹配的"路径"写法
// - markers：全部选择器失败后，逐个元素扫描时使用的关键字
type LoginPage struct {
	Name    string   `yaml:"name"`
	Markers []string `yaml:"markers"`
}

// Default 返回内置规则（与当前后台页面结构对应）。
func Default() Preset {
	return Preset{
		Articles: &ArticlesPage{
			Item:  ".article-card||.byte-table-tbody tr||.article-list-item",
			Title: ".title||[class*='title']",
			Time:  ".create-time||[class*='time']||@data-create-time",
			Stats: "ul.count li",
			Labels: StatLabels{
				Digg:    "点赞",
				Show:    "展现",
				Read:    "阅读",
				Comment: "评论",
			},
			Digg:    "[class*='digg-count']||[class*='like-count']",
			Show:    "[class*='impression-count']||[class*='show-count']",
			Read:    "[class*='read-count']",
			Comment: "[class*='comment-count']",
		},
		Login: &LoginPage{
			Name:    ".menu-title||.auth-avator-name||div[class*='menu-title']||div[class*='auth-avator-name']",
			Markers: []string{"AI", "创意"},
		},
	}
}

func Load(path string) (*Rules, error) {
	// 从文件加载 YAML 到 Rules.Presets
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r.Presets); err != nil {
		return nil, fmt.Errorf("unmarshal rules %s: %w", path, err)
	}
	return &r, nil
}

// GetPreset 按名称获取预设（不区分大小写），若为空或不存在则回退到 "default"。
func (r *Rules) GetPreset(name string) (Preset, bool) {
	if r == nil || len(r.Presets) == 0 {
		return Preset{}, false
	}
	if name == "" {
		name = "default"
	}
	if p, ok := r.Presets[name]; ok {
		return p, true
	}
	// 不区分大小写匹配
	lower := strings.ToLower(name)
	for k, v := range r.Presets {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	if p, ok := r.Presets["default"]; ok {
		return p, true
	}
	for _, v := range r.Presets {
		return v, true
	}
	return Preset{}, false
}

// Resolve 取出预设并以内置规则补齐缺失部分；r 为 nil 时直接返回内置规则。
func (r *Rules) Resolve(name string) Preset {
	def := Default()
	p, ok := r.GetPreset(name)
	if !ok {
		return def
	}
	if p.Articles == nil {
		p.Articles = def.Articles
	} else {
		a := *p.Articles
		fill(&a.Item, def.Articles.Item)
		fill(&a.Title, def.Articles.Title)
		fill(&a.Time, def.Articles.Time)
		fill(&a.Stats, def.Articles.Stats)
		fill(&a.Labels.Digg, def.Articles.Labels.Digg)
		fill(&a.Labels.Show, def.Articles.Labels.Show)
		fill(&a.Labels.Read, def.Articles.Labels.Read)
		fill(&a.Labels.Comment, def.Articles.Labels.Comment)
		fill(&a.Digg, def.Articles.Digg)
		fill(&a.Show, def.Articles.Show)
		fill(&a.Read, def.Articles.Read)
		fill(&a.Comment, def.Articles.Comment)
		p.Articles = &a
	}
	if p.Login == nil {
		p.Login = def.Login
	} else {
		l := *p.Login
		fill(&l.Name, def.Login.Name)
		if len(l.Markers) == 0 {
			l.Markers = def.Login.Markers
		}
		p.Login = &l
	}
	return p
}

func fill(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
