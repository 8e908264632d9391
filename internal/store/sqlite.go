// 包 store 提供账号凭据存储（SQLite），包含表迁移/写入/查询/修复等操作。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tt-creator/internal/cookies"
	"tt-creator/internal/logx"
	"tt-creator/internal/model"
)

var (
	ErrNotFound            = errors.New("account not found")
	ErrAlreadyExists       = errors.New("account already exists")
	ErrInvalidUsername     = errors.New("username required")
	ErrInvalidCookieFormat = errors.New("invalid cookies format")
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
// 进程内只打开一个连接，写操作再由 mu 串行化。
type SQLite struct {
	db  *sql.DB
	log *logx.Logger
	mu  sync.Mutex
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string, log *logx.Logger) (*SQLite, error) {
	if log == nil {
		log = logx.Nop()
	}
	// 说明：modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	if dir := filepath.Dir(path); path != ":memory:" && !strings.HasPrefix(path, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// migrate 执行建表语句，保持幂等。
// 旧库可能已有重复用户名，此时唯一索引建不起来，只记录警告；插入仍是原子的"不存在才插入"。
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS accounts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            cookies TEXT,
            last_login TIMESTAMP,
            status TEXT
        );`); err != nil {
		return fmt.Errorf("exec migrate: %w", err)
	}
	if _, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username)`); err != nil {
		s.log.Warnf("创建用户名唯一索引失败（库中存在重复账号？）：%v", err)
	}
	return nil
}

// Add 新增账号；用户名已存在时返回 ErrAlreadyExists，库保持不变。
func (s *SQLite) Add(ctx context.Context, username string, list []model.Cookie) error {
	username = normalizeName(username)
	if username == "" {
		return ErrInvalidUsername
	}
	payload, err := cookies.Serialize(list)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCookieFormat, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(ctx, s.db, username, payload)
}

// AddRaw 与 Add 相同，但 Cookie 以文本给出，必须能解析为 Cookie 集合。
func (s *SQLite) AddRaw(ctx context.Context, username, raw string) error {
	list, err := cookies.ParseString(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCookieFormat, err)
	}
	return s.Add(ctx, username, list)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insert 以单条语句完成"不存在才插入"，last_login 由数据库生成。
// normalizeName 为所有按用户名读写的操作统一去除首尾空白。
func normalizeName(username string) string { return strings.TrimSpace(username) }

func (s *SQLite) insert(ctx context.Context, ex execer, username, payload string) error {
	res, err := ex.ExecContext(ctx, `INSERT INTO accounts(username, cookies, last_login, status)
        SELECT ?, ?, CURRENT_TIMESTAMP, ?
        WHERE NOT EXISTS (SELECT 1 FROM accounts WHERE username = ?)`,
		username, payload, model.StatusActive, username)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account %s: %w", username, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, username)
	}
	return nil
}

// Replace 重新登录时使用：删除旧记录后重新插入，二者在同一事务内。
func (s *SQLite) Replace(ctx context.Context, username string, list []model.Cookie) error {
	username = normalizeName(username)
	if username == "" {
		return ErrInvalidUsername
	}
	payload, err := cookies.Serialize(list)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCookieFormat, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", username, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete account %s: %w", username, err)
	}
	if err := s.insert(ctx, tx, username, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", username, err)
	}
	return nil
}

// Get 按用户名精确查找；Cookie 数据损坏时返回 Cookies=nil 的账号并记录日志。
func (s *SQLite) Get(ctx context.Context, username string) (model.Account, error) {
	username = normalizeName(username)
	row := s.db.QueryRowContext(ctx, `SELECT id, username, cookies, last_login, status FROM accounts WHERE username = ? ORDER BY id LIMIT 1`, username)
	a, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("query account %s: %w", username, err)
	}
	return a, nil
}

// List 返回全部账号（按 id 升序）；损坏记录保留在结果中，只是 Cookies 为空。
func (s *SQLite) List(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, cookies, last_login, status FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan accounts: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	s.log.Debugf("读取账号列表，共 %d 个", len(out))
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scan(sc scanner) (model.Account, error) {
	var a model.Account
	var payload, status sql.NullString
	var lastLogin any
	if err := sc.Scan(&a.ID, &a.Username, &payload, &lastLogin, &status); err != nil {
		return a, err
	}
	a.Status = status.String
	a.LastLogin = parseTimestamp(lastLogin)
	if payload.Valid && strings.TrimSpace(payload.String) != "" {
		list, err := cookies.ParseString(payload.String)
		if err != nil {
			s.log.Warnf("解析 cookies 失败，账号=%s 错误=%v", a.Username, err)
			a.CookiesCorrupt = true
		} else {
			a.Cookies = list
		}
	}
	return a, nil
}

// Remove 按用户名删除，返回是否有记录被删除；删除不存在的账号不是错误。
func (s *SQLite) Remove(ctx context.Context, username string) (bool, error) {
	username = normalizeName(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("delete account %s: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete account %s: %w", username, err)
	}
	if n > 0 {
		s.log.Infof("账号删除成功：%s", username)
	}
	return n > 0, nil
}

// Repair 删除 Cookie 数据无法解析的记录（按 id），返回删除条数。
// 属于破坏性维护操作，仅由用户手动触发。
func (s *SQLite) Repair(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, cookies FROM accounts`)
	if err != nil {
		return 0, fmt.Errorf("query accounts: %w", err)
	}
	type bad struct {
		id       int64
		username string
	}
	var broken []bad
	for rows.Next() {
		var b bad
		var payload sql.NullString
		if err := rows.Scan(&b.id, &b.username, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan accounts: %w", err)
		}
		if strings.TrimSpace(payload.String) != "" && !cookies.Valid(payload.String) {
			broken = append(broken, b)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate accounts: %w", err)
	}
	rows.Close()
	removed := 0
	for _, b := range broken {
		s.log.Warnf("发现错误的 cookies 数据，删除账号：%s (id=%d)", b.username, b.id)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, b.id); err != nil {
			return removed, fmt.Errorf("delete account id=%d: %w", b.id, err)
		}
		removed++
	}
	return removed, nil
}

// parseTimestamp 兼容驱动返回 time.Time 或文本两种情况。
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeText(t)
	case []byte:
		return parseTimeText(string(t))
	default:
		return time.Time{}
	}
}

func parseTimeText(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
