// Package sqlite 以 modernc.org/sqlite 持久化快照文档（单表，键为 namespace/owner/file_name）。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ppsplan/pkg/contract"
)

// Options: Path 为数据库文件路径，默认 ppsplan.db。
type Options struct {
	Path string `json:"path"`
}

type Store struct {
	db   *sql.DB
	path string
	clk  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	namespace  TEXT NOT NULL,
	owner      TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	tree_json  TEXT,
	summary    TEXT,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (namespace, owner, file_name)
)`

// Open 打开（必要时创建）数据库并初始化表结构。
func Open(opts *Options) (*Store, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Path == "" {
		o.Path = "ppsplan.db"
	}
	if dir := filepath.Dir(o.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", o.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// 单写者：串行化连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &Store{db: db, path: o.Path, clk: time.Now}, nil
}

// Path 返回数据库文件路径。
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, key contract.SnapshotKey) (contract.Snapshot, bool, error) {
	if err := key.Validate(); err != nil {
		return contract.Snapshot{}, false, err
	}
	var (
		treeJSON sql.NullString
		summary  sql.NullString
		updated  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tree_json, summary, updated_at FROM snapshots WHERE namespace = ? AND owner = ? AND file_name = ?`,
		key.Namespace, key.Owner, key.FileName,
	).Scan(&treeJSON, &summary, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Snapshot{}, false, nil
	}
	if err != nil {
		return contract.Snapshot{}, false, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	snap := contract.Snapshot{Summary: summary.String}
	if treeJSON.Valid && treeJSON.String != "" {
		var t contract.Tree
		if err := json.Unmarshal([]byte(treeJSON.String), &t); err != nil {
			return contract.Snapshot{}, false, fmt.Errorf("sqlite: decode tree %s: %w", key, err)
		}
		snap.Tree = &t
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		snap.UpdatedAt = ts
	}
	return snap, true, nil
}

// Upsert 合并式写入：patch 中为 nil 的字段以 NULL 传入，由 COALESCE 保留旧值。
func (s *Store) Upsert(ctx context.Context, key contract.SnapshotKey, p contract.SnapshotPatch) error {
	if err := key.Validate(); err != nil {
		return err
	}
	var treeArg, summaryArg any
	if p.Tree != nil {
		b, err := json.Marshal(p.Tree)
		if err != nil {
			return fmt.Errorf("sqlite: encode tree: %w", err)
		}
		treeArg = string(b)
	}
	if p.Summary != nil {
		summaryArg = *p.Summary
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (namespace, owner, file_name, tree_json, summary, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, owner, file_name) DO UPDATE SET
			tree_json = COALESCE(excluded.tree_json, snapshots.tree_json),
			summary = COALESCE(excluded.summary, snapshots.summary),
			updated_at = excluded.updated_at
	`, key.Namespace, key.Owner, key.FileName, treeArg, summaryArg, s.clk().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key contract.SnapshotKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM snapshots WHERE namespace = ? AND owner = ? AND file_name = ?`,
		key.Namespace, key.Owner, key.FileName,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ contract.SnapshotStore = (*Store)(nil)
