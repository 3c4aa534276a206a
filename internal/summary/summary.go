// Package summary 生成跨全部条目的战略总结（Markdown，五类活动分组）。
package summary

import (
	"context"
	"errors"
	"fmt"

	"ppsplan/internal/generate"
	"ppsplan/pkg/contract"
)

const (
	NoPlans   = "Tidak ada Rencana Perbaikan yang cukup untuk dibuat kesimpulan."
	Exhausted = "Gagal membuat kesimpulan setelah beberapa percobaan (Batas Kecepatan)."
)

// Lines 按树顺序为有（清洗后）RTL 的条目生成 "Elemen <code>: <rtl>"。
func Lines(items []contract.Item) []string {
	var out []string
	for _, it := range items {
		if rtl := generate.Clean(it.CorrectivePlan); rtl != "" {
			out = append(out, fmt.Sprintf("Elemen %s: %s", it.Code, rtl))
		}
	}
	return out
}

// FailureText: 非限流失败时写入的总结文本。
func FailureText(err error) string {
	return "**Terjadi Kesalahan:**\n\nGagal membuat kesimpulan. " + generate.Reason(err)
}

func retryText(attempt int, p generate.Policy) string {
	return fmt.Sprintf("Batas permintaan AI tercapai. Mencoba lagi dalam %d detik... (percobaan %d/%d)",
		int(p.RetryDelay.Seconds()), attempt, p.MaxAttempts)
}

// Generate 生成总结并通过 write 写回（包括重试中的提示）。
// 没有任何 RTL 时写入 NoPlans 且不调用模型。取消时恢复 prev 并返回 ctx 错误。
// 返回值为最终写入的文本；err 仅用于诊断，调用方无需再写。
func Generate(ctx context.Context, r *generate.Runner, items []contract.Item, prev string, p generate.Policy, write func(string)) (string, error) {
	lines := Lines(items)
	if len(lines) == 0 {
		write(NoPlans)
		return NoPlans, nil
	}
	text, err := r.Prompts().BuildSummary(ctx, lines)
	if err != nil {
		v := FailureText(err)
		write(v)
		return v, err
	}
	touched := false
	out, err := r.Complete(ctx, text, p, func(attempt int) {
		if ctx.Err() == nil {
			touched = true
			write(retryText(attempt, p))
		}
	})
	switch {
	case err == nil:
		write(out)
		return out, nil
	case ctx.Err() != nil:
		if touched {
			write(prev)
		}
		return prev, ctx.Err()
	case errors.Is(err, generate.ErrRetriesExhausted):
		write(Exhausted)
		return Exhausted, err
	default:
		v := FailureText(err)
		write(v)
		return v, err
	}
}
