package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ppsplan/internal/batch"
	"ppsplan/internal/diag"
	"ppsplan/internal/generate"
	"ppsplan/internal/persist"
	"ppsplan/internal/report"
	"ppsplan/internal/session"
	"ppsplan/internal/summary"
	"ppsplan/pkg/contract"
)

// Workspace: 一个已导入文件的编辑上下文（会话 + 自动保存 + 批量编排器）。
type Workspace struct {
	p      *Pipeline
	sess   *session.Session
	saver  *persist.Autosaver
	batch  *batch.Orchestrator
	result ImportResult
}

func (w *Workspace) Session() *session.Session { return w.sess }

// Imported 返回打开时的导入结果。
func (w *Workspace) Imported() ImportResult { return w.result }

// Generate 对所有符合条件的条目批量生成 field。
// 同一 Workspace 同时至多一个运行（batch.ErrBusy）；Abort 或 ctx 取消时返回部分结果与 context.Canceled。
func (w *Workspace) Generate(ctx context.Context, field contract.Field, onProgress func(batch.Progress)) (batch.Result, error) {
	return w.batch.Run(ctx, field, onProgress)
}

// Abort 取消进行中的批量运行。
func (w *Workspace) Abort() bool { return w.batch.Abort() }

// Status 返回批量运行的最近进度。
func (w *Workspace) Status() (batch.Progress, bool) { return w.batch.Status() }

// Fill 为单个条目生成 field。
// 前置条件不满足时写入数据不足标记且不调用模型（Outcome=Skipped）。
// 生成失败以标记写入字段并体现在 Result 中；仅取消返回错误。
func (w *Workspace) Fill(ctx context.Context, id contract.ItemID, field contract.Field) (generate.Result, error) {
	task, err := generate.TaskFor(field)
	if err != nil {
		return generate.Result{}, err
	}
	it, ok := w.sess.Item(id)
	if !ok {
		return generate.Result{}, fmt.Errorf("%w: item %s", contract.ErrNotFound, id)
	}
	write := w.sess.Writer(id, field)
	if !task.Ready(it) {
		write(task.Insufficient)
		return generate.Result{Outcome: generate.Skipped, Value: task.Insufficient}, nil
	}
	timer := w.p.log.StartWith("fill", string(field), string(w.sess.FileID()), string(id))
	res := w.p.runner.Fill(ctx, it, task, generate.SinglePolicy, write)
	switch res.Outcome {
	case generate.Succeeded:
		timer.Finish(string(field), 1)
		diag.IncOp("fill", "finish", "success")
	case generate.Canceled:
		diag.IncOp("fill", "finish", "canceled")
		return res, res.Err
	default:
		diag.IncOp("fill", "finish", res.Outcome.String())
	}
	return res, nil
}

// Summarize 生成战略总结并保存到会话；返回最终文本。
// 失败文本同样会被保存，err 仅供诊断。
func (w *Workspace) Summarize(ctx context.Context) (string, error) {
	out, err := summary.Generate(ctx, w.p.runner, w.sess.Items(), w.sess.Summary(), generate.SummaryPolicy, w.sess.SetSummary)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		w.p.log.ErrorWith("summary", string(diag.Classify(err)), err.Error(), nil, string(w.sess.FileID()), "")
	}
	return out, err
}

// Inventory 返回文档清单与按类型分组的文档列表。
func (w *Workspace) Inventory() ([]contract.InventoryEntry, []report.Group) {
	items := w.sess.Items()
	return report.Inventory(items), report.GroupByType(items)
}

// Report 基于当前会话构造导出数据。
func (w *Workspace) Report() contract.Report {
	tree, sum, _ := w.sess.Snapshot()
	return report.Build(tree, sum)
}

// Flush 立即写入未保存的修改。
func (w *Workspace) Flush(ctx context.Context) error { return w.saver.Flush(ctx) }

// Close 中止进行中的运行，写入剩余修改并停止自动保存。
func (w *Workspace) Close(ctx context.Context) error {
	w.batch.Abort()
	return w.saver.Close(ctx)
}
