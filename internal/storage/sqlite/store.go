// Package sqlite 提供本地数据库存储
//
// 存两类数据：已领取 Token 的本地镜像（离线也能查看历史记录），
// 以及最近一次成功的额度快照（在线查询失败时的降级数据源）
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xn030523/Warp-Plus/internal/gateway"
)

// ErrNoUsageSnapshot 本地还没有缓存过额度快照
var ErrNoUsageSnapshot = errors.New("no cached usage snapshot")

// UsageRecord 持久化的额度快照
type UsageRecord struct {
	Email             string
	UserID            string
	IsUnlimited       bool
	RequestLimit      int
	RequestsUsed      int
	RequestsRemaining int
	NextRefreshTime   string
	FetchedAt         time.Time
}

// Store 本地 SQLite 存储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）本地数据库并执行迁移
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS claimed_tokens (
			id            INTEGER PRIMARY KEY,
			user_id       INTEGER NOT NULL DEFAULT 0,
			account_id    INTEGER NOT NULL DEFAULT 0,
			email         TEXT    NOT NULL,
			refresh_token TEXT    NOT NULL,
			ai_limit      INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_snapshot (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			email              TEXT    NOT NULL,
			user_id            TEXT    NOT NULL DEFAULT '',
			is_unlimited       INTEGER NOT NULL DEFAULT 0,
			request_limit      INTEGER NOT NULL DEFAULT 0,
			requests_used      INTEGER NOT NULL DEFAULT 0,
			requests_remaining INTEGER NOT NULL DEFAULT 0,
			next_refresh_time  TEXT    NOT NULL DEFAULT '',
			fetched_at         TEXT    NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveTokens 镜像后端返回的 Token 记录，按 id 幂等覆盖
func (s *Store) SaveTokens(records []gateway.TokenRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO claimed_tokens
		(id, user_id, account_id, email, refresh_token, ai_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.ID, r.UserID, r.AccountID, r.Email, r.RefreshToken, r.AILimit, r.CreatedAt); err != nil {
			return fmt.Errorf("insert token %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ListTokens 读取本地镜像，最新领取的排在前面
func (s *Store) ListTokens() ([]gateway.TokenRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, account_id, email, refresh_token, ai_limit, created_at
		FROM claimed_tokens ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var records []gateway.TokenRecord
	for rows.Next() {
		var r gateway.TokenRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.AccountID, &r.Email, &r.RefreshToken, &r.AILimit, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveUsage 覆盖保存最近一次成功的额度快照
func (s *Store) SaveUsage(rec *UsageRecord) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO usage_snapshot
		(id, email, user_id, is_unlimited, request_limit, requests_used, requests_remaining, next_refresh_time, fetched_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Email, rec.UserID, boolToInt(rec.IsUnlimited), rec.RequestLimit,
		rec.RequestsUsed, rec.RequestsRemaining, rec.NextRefreshTime,
		rec.FetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save usage snapshot: %w", err)
	}
	return nil
}

// LoadUsage 读取缓存的额度快照，没有缓存时返回 ErrNoUsageSnapshot
func (s *Store) LoadUsage() (*UsageRecord, error) {
	row := s.db.QueryRow(`SELECT email, user_id, is_unlimited, request_limit, requests_used,
		requests_remaining, next_refresh_time, fetched_at FROM usage_snapshot WHERE id = 1`)

	var rec UsageRecord
	var unlimited int
	var fetchedAt string
	err := row.Scan(&rec.Email, &rec.UserID, &unlimited, &rec.RequestLimit,
		&rec.RequestsUsed, &rec.RequestsRemaining, &rec.NextRefreshTime, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoUsageSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load usage snapshot: %w", err)
	}

	rec.IsUnlimited = unlimited != 0
	if ts, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		rec.FetchedAt = ts
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
