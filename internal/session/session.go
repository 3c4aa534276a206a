// Package session 独占持有一份已协调的树，并以细粒度方式修改单个条目字段。
package session

import (
	"fmt"
	"sync"

	"ppsplan/pkg/contract"
)

// Session: 一个已导入文件的工作副本。
// 约束：
//   - 树在构造时深拷贝，此后结构不再变化，只修改叶子字段；
//   - 写入只锁定并修改单个字段，不复制整棵树；读取返回深拷贝；
//   - 每次修改后按注册顺序调用变更回调（锁外调用）。
type Session struct {
	key    contract.SnapshotKey
	fileID contract.FileID

	mu      sync.RWMutex
	tree    *contract.Tree
	index   map[contract.ItemID]*contract.Item
	order   []contract.ItemID
	summary string
	version uint64

	hookMu sync.RWMutex
	hooks  []func()
}

// New 构造会话；tree 被深拷贝，调用方可继续使用原树。
func New(key contract.SnapshotKey, fileID contract.FileID, tree *contract.Tree, summary string) *Session {
	own := tree.Clone()
	if own == nil {
		own = &contract.Tree{}
	}
	s := &Session{key: key, fileID: fileID, tree: own, summary: summary, index: make(map[contract.ItemID]*contract.Item)}
	own.Walk(func(_ *contract.Chapter, _ *contract.Standard, _ *contract.Criterion, it *contract.Item) bool {
		// 切片在构造后不再扩容，元素地址稳定
		s.index[it.ID] = it
		s.order = append(s.order, it.ID)
		return true
	})
	return s
}

func (s *Session) Key() contract.SnapshotKey { return s.key }

func (s *Session) FileID() contract.FileID { return s.fileID }

// OnChange 注册变更回调。
func (s *Session) OnChange(fn func()) {
	if fn == nil {
		return
	}
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Session) notify() {
	s.hookMu.RLock()
	hooks := append([]func(){}, s.hooks...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// SetField 修改单个条目的可变字段。
// 未知身份返回 ErrNotFound；结构性字段返回 ErrInvalidInput。
func (s *Session) SetField(id contract.ItemID, f contract.Field, v string) error {
	if !f.Mutable() {
		return fmt.Errorf("%w: field %q is not mutable", contract.ErrInvalidInput, f)
	}
	s.mu.Lock()
	it, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: item %s", contract.ErrNotFound, id)
	}
	if it.Get(f) == v {
		s.mu.Unlock()
		return nil
	}
	it.Set(f, v)
	s.version++
	s.mu.Unlock()
	s.notify()
	return nil
}

// Writer 返回绑定到 (id, f) 的写回函数；写入失败只可能是编程错误，忽略。
func (s *Session) Writer(id contract.ItemID, f contract.Field) func(string) {
	return func(v string) { _ = s.SetField(id, f, v) }
}

// Item 返回条目副本。
func (s *Session) Item(id contract.ItemID) (contract.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.index[id]
	if !ok {
		return contract.Item{}, false
	}
	return *it, true
}

// Items 按树顺序返回全部条目副本。
func (s *Session) Items() []contract.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contract.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.index[id])
	}
	return out
}

// Len 返回条目数。
func (s *Session) Len() int { return len(s.order) }

// Tree 返回整棵树的深拷贝。
func (s *Session) Tree() *contract.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// Summary 返回当前战略总结。
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// SetSummary 替换战略总结。
func (s *Session) SetSummary(v string) {
	s.mu.Lock()
	if s.summary == v {
		s.mu.Unlock()
		return
	}
	s.summary = v
	s.version++
	s.mu.Unlock()
	s.notify()
}

// Snapshot 在同一把读锁下取得树副本、总结与版本号。
func (s *Session) Snapshot() (*contract.Tree, string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone(), s.summary, s.version
}

// Version 每次实际修改递增。
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
