// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 仅保留当前需要的字段，避免过度设计（KISS/YAGNI）。
type Config struct {
	Database  Database `yaml:"DATABASE"`
	Browser   Browser  `yaml:"BROWSER"`
	Login     Login    `yaml:"LOGIN"`
	Scrape    Scrape   `yaml:"SCRAPE"`
	Check     Check    `yaml:"CHECK"`
	Proxy     Proxy    `yaml:"PROXY"`
	RulesPath string   `yaml:"RULES"` // 选择器规则文件，可选
	Theme     string   `yaml:"THEME"` // rules.yaml 中的预设名
	LogLevel  string   `yaml:"LOG_LEVEL"`
	LogFormat string   `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale string   `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor  string   `yaml:"LOG_COLOR"`  // auto|always|never
	LogFile   string   `yaml:"LOG_FILE"`   // 为空则只输出到控制台

	set explicit // 文件中显式填写、且 0 有意义的项
}

// explicit 记录 0 值有含义的配置项是否在文件中出现过。
// mergo 把 0 视为未填写，这些项在合并默认值后需要还原。
type explicit struct {
	Browser struct {
		ImplicitWait *time.Duration `yaml:"implicit_wait"`
	} `yaml:"BROWSER"`
	Login struct {
		Settle *time.Duration `yaml:"settle"`
	} `yaml:"LOGIN"`
	Check struct {
		Retry *int `yaml:"retry"`
	} `yaml:"CHECK"`
}

func (e explicit) restore(c *Config) {
	if e.Browser.ImplicitWait != nil {
		c.Browser.ImplicitWait = *e.Browser.ImplicitWait
	}
	if e.Login.Settle != nil {
		c.Login.Settle = *e.Login.Settle
	}
	if e.Check.Retry != nil {
		c.Check.Retry = *e.Check.Retry
	}
}

type Database struct {
	Type string `yaml:"type"` // sqlite (default)
	DSN  string `yaml:"dsn"`  // ./data/accounts.db
}

// Browser 为浏览器会话的固定参数，登录与抓取共用同一份。
type Browser struct {
	ExecPath     string `yaml:"exec_path"`
	Headless     bool   `yaml:"headless"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	UserAgent    string `yaml:"user_agent"`
	// AllowAutomationFlags 为 true 时不隐藏自动化特征
	AllowAutomationFlags bool `yaml:"allow_automation_flags"`
	// IgnoreCertErrors 默认关闭；开启后登录与抓取都会忽略证书错误
	IgnoreCertErrors bool          `yaml:"ignore_cert_errors"`
	PageLoadTimeout  time.Duration `yaml:"page_load_timeout"`
	ScriptTimeout    time.Duration `yaml:"script_timeout"`
	ImplicitWait     time.Duration `yaml:"implicit_wait"`
}

type Login struct {
	URL          string        `yaml:"url"`
	Marker       string        `yaml:"marker"` // 登录页 URL 中的路径片段
	PollInterval time.Duration `yaml:"poll_interval"`
	Deadline     time.Duration `yaml:"deadline"`
	Settle       time.Duration `yaml:"settle"`    // 跳转后等待页面渲染
	NameWait     time.Duration `yaml:"name_wait"` // 每个用户名选择器的等待上限
}

type Scrape struct {
	HomeURL       string        `yaml:"home_url"`
	ArticlesURL   string        `yaml:"articles_url"`
	CookieDomain  string        `yaml:"cookie_domain"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
	FallbackWait  time.Duration `yaml:"fallback_wait"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	TaskTimeout   time.Duration `yaml:"task_timeout"`
	Concurrency   int           `yaml:"concurrency"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// Check 为会话有效性探测（不打开浏览器）。
type Check struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   int           `yaml:"retry"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// Default 返回内置默认配置；Load 会把它合并进未填写的字段。
func Default() Config {
	return Config{
		Database: Database{Type: "sqlite", DSN: "./data/accounts.db"},
		Browser: Browser{
			WindowWidth:     1024,
			WindowHeight:    768,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
			PageLoadTimeout: 60 * time.Second,
			ScriptTimeout:   60 * time.Second,
			ImplicitWait:    20 * time.Second,
		},
		Login: Login{
			URL:          "https://mp.toutiao.com/auth/page/login",
			Marker:       "login",
			PollInterval: time.Second,
			Deadline:     5 * time.Minute,
			Settle:       5 * time.Second,
			NameWait:     5 * time.Second,
		},
		Scrape: Scrape{
			HomeURL:       "https://mp.toutiao.com",
			ArticlesURL:   "https://mp.toutiao.com/profile_v4/graphic/articles",
			CookieDomain:  ".toutiao.com",
			WaitTimeout:   20 * time.Second,
			PollInterval:  500 * time.Millisecond,
			TaskTimeout:   120 * time.Second,
			Concurrency:   1,
			WatchInterval: 30 * time.Minute,
		},
		Check: Check{
			URL:     "https://mp.toutiao.com/mp/agw/media/get_media_info",
			Timeout: 15 * time.Second,
			Retry:   1,
		},
		Theme:     "default",
		LogLevel:  "info",
		LogFormat: "pretty",
		LogLocale: "zh-CN",
		LogColor:  "auto",
	}
}

// Load 从文件读取 YAML 并反序列化为 Config，同时进行基础校验与默认值填充。
// 文件不存在时使用默认配置；当前目录的 .env 会先被加载用于环境变量覆盖。
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env 可选
	var c Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config %s: %w", path, err)
	default:
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c.set); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv 允许通过环境变量覆盖少量常改项。
func (c *Config) applyEnv() {
	if v := os.Getenv("TT_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("TT_CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv("TT_UA"); v != "" {
		c.Browser.UserAgent = v
	}
}

func (c *Config) Validate() error {
	// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
	durations := map[string]time.Duration{
		"BROWSER.page_load_timeout": c.Browser.PageLoadTimeout,
		"BROWSER.script_timeout":    c.Browser.ScriptTimeout,
		"BROWSER.implicit_wait":     c.Browser.ImplicitWait,
		"LOGIN.poll_interval":       c.Login.PollInterval,
		"LOGIN.deadline":            c.Login.Deadline,
		"LOGIN.settle":              c.Login.Settle,
		"LOGIN.name_wait":           c.Login.NameWait,
		"SCRAPE.wait_timeout":       c.Scrape.WaitTimeout,
		"SCRAPE.fallback_wait":      c.Scrape.FallbackWait,
		"SCRAPE.poll_interval":      c.Scrape.PollInterval,
		"SCRAPE.task_timeout":       c.Scrape.TaskTimeout,
		"SCRAPE.watch_interval":     c.Scrape.WatchInterval,
		"CHECK.timeout":             c.Check.Timeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if c.Scrape.Concurrency < 0 {
		return errors.New("SCRAPE.concurrency must be >= 0")
	}
	if c.Check.Retry < 0 {
		return errors.New("CHECK.retry must be >= 0")
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		return errors.New("BROWSER window size must be >= 0")
	}
	if err := mergo.Merge(c, Default()); err != nil {
		return fmt.Errorf("merge defaults: %w", err)
	}
	// implicit_wait/settle 为 0s、retry 为 0 表示关闭，而不是使用默认值
	c.set.restore(c)
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	return nil
}
