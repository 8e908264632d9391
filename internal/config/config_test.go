package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tt-creator/internal/config"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "c.yaml")
	_ = os.WriteFile(f, []byte("LOG_LEVEL: debug\nSCRAPE:\n  task_timeout: 90s\n"), 0644)
	c, err := config.Load(f)
	require.NoError(t, err)
	require.Equal(t, "sqlite", c.Database.Type)
	require.NotEmpty(t, c.Database.DSN)
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, 90*time.Second, c.Scrape.TaskTimeout)
	// 未填写的字段取默认值
	require.Equal(t, 20*time.Second, c.Scrape.WaitTimeout)
	require.Equal(t, 5*time.Minute, c.Login.Deadline)
	require.Equal(t, ".toutiao.com", c.Scrape.CookieDomain)
	require.False(t, c.Browser.IgnoreCertErrors)
	require.NotEmpty(t, c.LogFormat)
	require.NotEmpty(t, c.LogLocale)
	require.NotEmpty(t, c.LogColor)

	// 负数时长应报错
	_ = os.WriteFile(f, []byte("LOGIN:\n  deadline: -1s\n"), 0644)
	_, err = config.Load(f)
	require.Error(t, err)

	_ = os.WriteFile(f, []byte("DATABASE:\n  type: postgres\n"), 0644)
	_, err = config.Load(f)
	require.Error(t, err)
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default().Scrape.ArticlesURL, c.Scrape.ArticlesURL)
	require.Equal(t, 1, c.Scrape.Concurrency)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TT_DB_DSN", "/tmp/other.db")
	t.Setenv("TT_UA", "test-agent/1.0")
	c, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/other.db", c.Database.DSN)
	require.Equal(t, "test-agent/1.0", c.Browser.UserAgent)
}

func TestConfig_ExplicitZeroKept(t *testing.T) {
	f := filepath.Join(t.TempDir(), "c.yaml")
	body := "BROWSER:\n  implicit_wait: 0s\nLOGIN:\n  settle: 0s\nCHECK:\n  retry: 0\n"
	require.NoError(t, os.WriteFile(f, []byte(body), 0644))
	c, err := config.Load(f)
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), c.Browser.ImplicitWait)
	require.Equal(t, time.Duration(0), c.Login.Settle)
	require.Equal(t, 0, c.Check.Retry)
	// 未出现的项仍取默认值
	require.Equal(t, 5*time.Minute, c.Login.Deadline)
	require.Equal(t, 15*time.Second, c.Check.Timeout)

	// 未填写时仍回退到默认值
	require.NoError(t, os.WriteFile(f, []byte("LOGIN:\n  deadline: 1m\n"), 0644))
	c, err = config.Load(f)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, c.Login.Settle)
	require.Equal(t, 1, c.Check.Retry)
	require.Equal(t, 20*time.Second, c.Browser.ImplicitWait)
}
