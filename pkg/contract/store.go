package contract

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SnapshotKey: 快照寻址键。FileName 为源文件基名（大小写敏感，原样比较）。
type SnapshotKey struct {
	Namespace string
	Owner     string
	FileName  string
}

// Validate 要求三段均非空。
func (k SnapshotKey) Validate() error {
	if strings.TrimSpace(k.Namespace) == "" || strings.TrimSpace(k.Owner) == "" || k.FileName == "" {
		return fmt.Errorf("%w: snapshot key incomplete", ErrInvalidInput)
	}
	return nil
}

func (k SnapshotKey) String() string { return k.Namespace + "/" + k.Owner + "/" + k.FileName }

// Snapshot: 已持久化的协调树与总结。
type Snapshot struct {
	Tree      *Tree
	Summary   string
	UpdatedAt time.Time
}

// SnapshotPatch: 合并式写入载荷；nil 字段表示保留已存值。
type SnapshotPatch struct {
	Tree    *Tree
	Summary *string
}

// SnapshotStore: 外部文档存储（读取、合并式写入、存在性检查）。
// 约束：
// 1) Upsert 只覆盖 patch 中非 nil 的字段，其余保持；
// 2) Get 返回的树归调用方所有（实现需返回副本）；
// 3) 单个键的写入串行化由调用方（Autosaver）保证。
type SnapshotStore interface {
	Get(ctx context.Context, key SnapshotKey) (Snapshot, bool, error)
	Upsert(ctx context.Context, key SnapshotKey, patch SnapshotPatch) error
	Exists(ctx context.Context, key SnapshotKey) (bool, error)
	Close() error
}
