// Package batch 以固定大小的分块顺序执行批量字段生成，块内并发。
package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ppsplan/internal/diag"
	"ppsplan/internal/generate"
	"ppsplan/internal/session"
	"ppsplan/pkg/contract"
)

var (
	// ErrBusy: 同一会话已有批量运行。
	ErrBusy = errors.New("batch run already active")
	// ErrNothingToDo: 没有符合条件的条目；不会启动运行。
	ErrNothingToDo = errors.New("nothing to do")
)

const (
	DefaultChunkSize = 5
	DefaultCooldown  = 1500 * time.Millisecond
)

// Options: 批量运行参数；零值取默认。
type Options struct {
	ChunkSize int
	Cooldown  time.Duration
	Policy    generate.Policy
	Logger    *diag.Logger
	Terminal  *diag.Terminal
}

// Progress: 每个分块结束后发布。
type Progress struct {
	Completed int
	Total     int
	Chunk     int
	Chunks    int
	Success   int
	Failed    int
}

// Notice: 需要全局提示的失败（每类一次）。
type Notice struct {
	Kind    string
	Message string
}

// Result: 一次运行的汇总，只返回一次。
type Result struct {
	Total    int
	Success  int
	Failed   int
	Canceled int
	Aborted  bool
	Notices  []Notice
}

// Orchestrator 绑定一个会话；同一时刻至多一个批量运行（任意字段）。
type Orchestrator struct {
	sess   *session.Session
	runner *generate.Runner
	opt    Options

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	status Progress
}

func New(sess *session.Session, runner *generate.Runner, opt Options) *Orchestrator {
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}
	if opt.Cooldown < 0 {
		opt.Cooldown = 0
	}
	if opt.Policy.MaxAttempts == 0 {
		opt.Policy = generate.BatchPolicy
	}
	return &Orchestrator{sess: sess, runner: runner, opt: opt}
}

// Eligible 按树顺序筛选：前置条件满足且目标字段清洗后为空。
func Eligible(items []contract.Item, task generate.Task) []contract.Item {
	var out []contract.Item
	for _, it := range items {
		if task.Eligible(it) {
			out = append(out, it)
		}
	}
	return out
}

// Regenerations 统计目标字段当前为标记（失败、数据不足或占位）而将被重新生成的条目数。
func Regenerations(items []contract.Item, field contract.Field) int {
	n := 0
	for i := range items {
		if generate.IsMarker(items[i].Get(field)) {
			n++
		}
	}
	return n
}

// Status 返回最近发布的进度与是否有运行在进行。
func (o *Orchestrator) Status() (Progress, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status, o.active
}

// Abort 取消正在进行的运行；没有运行时返回 false。
func (o *Orchestrator) Abort() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active || o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Run 为会话中所有符合条件的条目生成 field。
// 分块严格顺序执行，块内并发，块间插入 Cooldown（最后一块之后不等待）。
// 取消（Abort 或 ctx）后不再启动新分块；进行中的条目记为 Canceled 且不写终态标记，
// 返回部分结果与 context.Canceled。
func (o *Orchestrator) Run(ctx context.Context, field contract.Field, onProgress func(Progress)) (Result, error) {
	task, err := generate.TaskFor(field)
	if err != nil {
		return Result{}, err
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return Result{}, ErrBusy
	}
	todo := Eligible(o.sess.Items(), task)
	if len(todo) == 0 {
		o.mu.Unlock()
		return Result{}, fmt.Errorf("%w: no item eligible for %s", ErrNothingToDo, field)
	}
	runCtx, cancel := context.WithCancel(ctx)
	chunks := (len(todo) + o.opt.ChunkSize - 1) / o.opt.ChunkSize
	o.active, o.cancel = true, cancel
	o.status = Progress{Total: len(todo), Chunks: chunks}
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.active, o.cancel = false, nil
		o.mu.Unlock()
	}()

	fileID := string(o.sess.FileID())
	log, term := o.opt.Logger, o.opt.Terminal
	timer := log.StartWithKV("batch", "run", fileID, string(field), map[string]string{
		"total":   strconv.Itoa(len(todo)),
		"chunks":  strconv.Itoa(chunks),
		"markers": strconv.Itoa(Regenerations(todo, field)),
	})
	term.BatchStart(fileID, string(field), len(todo))

	res := Result{Total: len(todo)}
	seen := make(map[string]bool)
	for ci := 0; ci < chunks; ci++ {
		if runCtx.Err() != nil {
			break
		}
		lo := ci * o.opt.ChunkSize
		hi := min(lo+o.opt.ChunkSize, len(todo))
		chunk := todo[lo:hi]
		log.DebugStart("batch", "chunk", fileID, string(field), map[string]string{
			"chunk": strconv.Itoa(ci + 1),
			"items": strconv.Itoa(len(chunk)),
		})

		results := make([]generate.Result, len(chunk))
		var g errgroup.Group
		for i, it := range chunk {
			g.Go(func() error {
				// 以最新内容构造提示词（单条生成可能已更新来源字段）
				if cur, ok := o.sess.Item(it.ID); ok {
					it = cur
				}
				results[i] = o.runner.Fill(runCtx, it, task, o.opt.Policy, o.sess.Writer(it.ID, field))
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			switch r.Outcome {
			case generate.Succeeded:
				res.Success++
			case generate.Canceled:
				res.Canceled++
			default:
				res.Failed++
				if kind, msg, ok := generate.NoticeFor(r.Err); ok && !seen[kind] {
					seen[kind] = true
					res.Notices = append(res.Notices, Notice{Kind: kind, Message: msg})
					term.Notice(msg)
				}
			}
		}

		p := Progress{
			Completed: res.Success + res.Failed + res.Canceled,
			Total:     len(todo),
			Chunk:     ci + 1,
			Chunks:    chunks,
			Success:   res.Success,
			Failed:    res.Failed,
		}
		o.mu.Lock()
		o.status = p
		o.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
		term.BatchProgress(p.Completed, p.Total, p.Failed, p.Chunk, p.Chunks)
		diag.IncOp("batch", "chunk", "success")

		if ci+1 < chunks {
			if err := sleepWithCtx(runCtx, o.opt.Cooldown); err != nil {
				break
			}
		}
	}

	if runCtx.Err() != nil {
		res.Aborted = true
		log.ErrorWithKV("batch", string(diag.CodeCancel), "run aborted", timer.Since(), fileID, string(field), map[string]string{
			"success":  strconv.Itoa(res.Success),
			"failed":   strconv.Itoa(res.Failed),
			"canceled": strconv.Itoa(res.Canceled),
		})
		diag.IncOp("batch", "run", "canceled")
		term.BatchFinish(false, res.Success, res.Failed, time.Since(*timer.Since()))
		return res, context.Canceled
	}
	timer.Finish("run", int64(res.Success))
	diag.IncOp("batch", "run", "success")
	diag.ObserveDuration("batch", "run", time.Since(*timer.Since()).Milliseconds())
	term.BatchFinish(true, res.Success, res.Failed, time.Since(*timer.Since()))
	return res, nil
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
