// Package persist 以防抖方式把会话写入快照存储。
package persist

import (
	"context"
	"strconv"
	"sync"
	"time"

	"ppsplan/internal/diag"
	"ppsplan/internal/session"
	"ppsplan/pkg/contract"
)

// DefaultDelay: 最后一次修改后等待多久写入。
const DefaultDelay = time.Second

// Autosaver 订阅会话变更，在静默 Delay 后合并写入 {tree, summary}。
// 写入由单个 goroutine 串行执行；失败只记录日志，不阻塞会话。
type Autosaver struct {
	store contract.SnapshotStore
	sess  *session.Session
	delay time.Duration
	log   *diag.Logger

	kick  chan struct{}
	flush chan flushReq
	quit  chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	saved uint64
	dirty bool
	saves int
	err   error

	closeOnce sync.Once
}

type flushReq struct {
	ctx   context.Context
	reply chan error
}

// New 启动自动保存。会话当前版本视为已保存。
func New(store contract.SnapshotStore, sess *session.Session, delay time.Duration, log *diag.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	a := &Autosaver{
		store: store,
		sess:  sess,
		delay: delay,
		log:   log,
		kick:  make(chan struct{}, 1),
		flush: make(chan flushReq),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		saved: sess.Version(),
	}
	sess.OnChange(a.Touch)
	go a.loop()
	return a
}

// Touch 标记有新修改（非阻塞）。
func (a *Autosaver) Touch() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *Autosaver) loop() {
	defer close(a.done)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}
	for {
		select {
		case <-a.kick:
			if timer == nil {
				timer = time.NewTimer(a.delay)
			} else {
				timer.Reset(a.delay)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			_ = a.save(context.Background())
		case req := <-a.flush:
			stop()
			req.reply <- a.save(req.ctx)
		case <-a.quit:
			stop()
			return
		}
	}
}

func (a *Autosaver) save(ctx context.Context) error {
	tree, summary, ver := a.sess.Snapshot()
	a.mu.Lock()
	if ver == a.saved && !a.dirty {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	key := a.sess.Key()
	timer := a.log.StartWith("autosave", "upsert", key.FileName, "")
	err := a.store.Upsert(ctx, key, contract.SnapshotPatch{Tree: tree, Summary: &summary})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	if err != nil {
		code := diag.Classify(err)
		a.log.ErrorWithKV("autosave", string(code), "upsert failed: "+err.Error(), timer.Since(), key.FileName, "", map[string]string{
			"version": strconv.FormatUint(ver, 10),
		})
		diag.IncOp("autosave", "error", "error")
		return err
	}
	a.saved, a.dirty = ver, false
	a.saves++
	timer.Finish("upsert", int64(tree.Len()))
	diag.IncOp("autosave", "finish", "success")
	return nil
}

// MarkUnsaved 把当前版本视为未保存（初始写入失败时），并安排一次防抖写入。
func (a *Autosaver) MarkUnsaved() {
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
	a.Touch()
}

// Flush 取消待定的防抖并立即写入未保存的修改。
func (a *Autosaver) Flush(ctx context.Context) error {
	req := flushReq{ctx: ctx, reply: make(chan error, 1)}
	select {
	case a.flush <- req:
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 写入剩余修改并停止后台 goroutine。可重复调用。
func (a *Autosaver) Close(ctx context.Context) error {
	err := a.Flush(ctx)
	a.closeOnce.Do(func() { close(a.quit) })
	<-a.done
	return err
}

// Saves 返回成功写入次数。
func (a *Autosaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Err 返回最近一次写入的错误。
func (a *Autosaver) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
