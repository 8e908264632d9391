// 包 export 负责将抓取结果写为 JSON 文件（articles.json），便于后续分析。
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tt-creator/internal/model"
)

// MaxArticlesPerAccount 为单个账号导出的文章数上限（列表页按发布时间倒序，保留最新的）。
const MaxArticlesPerAccount = 150

// ToJSON 将各账号最近的抓取结果写入 path（带缩进格式）。
// 先写临时文件再改名，读取方不会看到写了一半的文件。
func ToJSON(accounts []model.AccountArticles, path string) error {
	out := model.Export{UpdatedAt: time.Now(), Accounts: make([]model.AccountArticles, 0, len(accounts))}
	for _, a := range accounts {
		if len(a.Articles) > MaxArticlesPerAccount {
			a.Articles = a.Articles[:MaxArticlesPerAccount]
		}
		if a.Articles == nil {
			a.Articles = []model.Article{}
		}
		out.Accounts = append(out.Accounts, a)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
