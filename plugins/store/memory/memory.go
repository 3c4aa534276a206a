// Package memory 提供进程内快照存储（测试与 --store memory）。
package memory

import (
	"context"
	"sync"
	"time"

	"ppsplan/pkg/contract"
)

// Store: 并发安全的内存快照存储；Upsert 只覆盖非 nil 字段。
type Store struct {
	mu     sync.Mutex
	m      map[contract.SnapshotKey]contract.Snapshot
	writes int
	clk    func() time.Time
	fail   error
}

func New() *Store {
	return &Store{m: make(map[contract.SnapshotKey]contract.Snapshot), clk: time.Now}
}

func (s *Store) Get(ctx context.Context, key contract.SnapshotKey) (contract.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return contract.Snapshot{}, false, err
	}
	if err := key.Validate(); err != nil {
		return contract.Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.m[key]
	if !ok {
		return contract.Snapshot{}, false, nil
	}
	snap.Tree = snap.Tree.Clone()
	return snap, true, nil
}

func (s *Store) Upsert(ctx context.Context, key contract.SnapshotKey, p contract.SnapshotPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	snap := s.m[key]
	if p.Tree != nil {
		snap.Tree = p.Tree.Clone()
	}
	if p.Summary != nil {
		snap.Summary = *p.Summary
	}
	snap.UpdatedAt = s.clk()
	s.m[key] = snap
	s.writes++
	return nil
}

func (s *Store) Exists(ctx context.Context, key contract.SnapshotKey) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Close() error { return nil }

// Writes 返回成功 Upsert 次数。
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailWith 让后续 Upsert 返回 err（nil 恢复）。
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

var _ contract.SnapshotStore = (*Store)(nil)
