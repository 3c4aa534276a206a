package generate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ppsplan/internal/diag"
	"ppsplan/internal/prompt"
	"ppsplan/internal/rate"
	"ppsplan/pkg/contract"
)

// ErrRetriesExhausted: 所有尝试均因限流失败。
var ErrRetriesExhausted = errors.New("RETRIES_EXHAUSTED")

// DefaultCallTimeout: 单次生成调用的上限。
const DefaultCallTimeout = 60 * time.Second

// Policy: 一类调用的重试策略。只有 RATE_LIMIT 会被重试。
type Policy struct {
	Name        string
	MaxAttempts int
	RetryDelay  time.Duration
	// Exhausted: 重试耗尽时写入字段的标记；为空表示调用方自行处理。
	Exhausted string
}

var (
	SinglePolicy  = Policy{Name: "single", MaxAttempts: 3, RetryDelay: 2 * time.Second, Exhausted: "Gagal setelah beberapa percobaan (Rate Limit)"}
	BatchPolicy   = Policy{Name: "batch", MaxAttempts: 3, RetryDelay: 3 * time.Second, Exhausted: "Gagal setelah beberapa percobaan (Batas Kecepatan)"}
	SummaryPolicy = Policy{Name: "summary", MaxAttempts: 3, RetryDelay: 5 * time.Second}
)

// Options: Runner 的可选依赖。
type Options struct {
	Gate            rate.Gate
	Key             rate.LimitKey
	Estimator       contract.TokenEstimator
	MaxTokensPerReq int
	CallTimeout     time.Duration
	Logger          *diag.Logger
}

// Runner 执行一次带限流与重试的生成调用。并发安全（无可变状态）。
type Runner struct {
	gen     contract.Generator
	prompts contract.PromptBuilder
	opt     Options
}

// NewRunner 构造 Runner；缺省估算器为 4 字节/token，缺省超时为 DefaultCallTimeout。
func NewRunner(gen contract.Generator, pb contract.PromptBuilder, opt Options) *Runner {
	if opt.Estimator == nil {
		opt.Estimator = prompt.MakeEstimator(4)
	}
	if opt.CallTimeout <= 0 {
		opt.CallTimeout = DefaultCallTimeout
	}
	return &Runner{gen: gen, prompts: pb, opt: opt}
}

// Prompts 返回提示词构造器（供总结等复用）。
func (r *Runner) Prompts() contract.PromptBuilder { return r.prompts }

// Complete 发出提示词并返回规整后的文本。
// 每次尝试先经过限流闸门，再在单次超时内调用生成器。
// RATE_LIMIT：回调 onRetry(attempt) 后等待 RetryDelay 再试（最后一次不等待）；
// 其他失败立即返回；空输出视为 ErrResponseInvalid；限流耗尽返回 ErrRetriesExhausted。
func (r *Runner) Complete(ctx context.Context, text string, p Policy, onRetry func(attempt int)) (string, error) {
	tokens, err := prompt.CheckBudget(r.opt.Estimator, text, r.opt.MaxTokensPerReq)
	if err != nil {
		return "", err
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	log := r.opt.Logger
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if r.opt.Gate != nil {
			log.DebugStart("gate", "ask", "", p.Name, map[string]string{
				"tokens":  strconv.Itoa(tokens),
				"attempt": strconv.Itoa(attempt),
			})
			if err := r.opt.Gate.Wait(ctx, rate.Ask{Key: r.opt.Key, Requests: 1, Tokens: tokens}); err != nil {
				code := diag.Classify(err)
				log.ErrorWith("gate", string(code), "wait failed", nil, "", p.Name)
				diag.IncOp("gate", "error", "error")
				return "", err
			}
		}

		out, err := r.call(ctx, text, attempt, tokens, p)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, contract.ErrRateLimited) || ctx.Err() != nil {
			return "", err
		}
		if onRetry != nil {
			onRetry(attempt)
		}
		if attempt == attempts {
			break
		}
		log.WarnWithKV("llm_client", string(diag.CodeBudget), "rate limited, retrying", "", map[string]string{
			"attempt": strconv.Itoa(attempt),
			"delay":   p.RetryDelay.String(),
		})
		if err := sleepWithCtx(ctx, p.RetryDelay); err != nil {
			return "", err
		}
	}
	diag.IncError("llm_client", string(diag.CodeBudget))
	return "", fmt.Errorf("%w: %d attempts rate limited", ErrRetriesExhausted, attempts)
}

// call 执行单次调用；单次超时（而非外部取消）归为 NETWORK_ERROR。
func (r *Runner) call(ctx context.Context, text string, attempt, tokens int, p Policy) (string, error) {
	log := r.opt.Logger
	timer := log.StartWithKV("llm_client", "invoke", "", p.Name, map[string]string{
		"tokens":  strconv.Itoa(tokens),
		"attempt": strconv.Itoa(attempt),
	})
	cctx, cancel := context.WithTimeout(ctx, r.opt.CallTimeout)
	defer cancel()
	raw, err := r.gen.Generate(cctx, text)
	if err == nil {
		out := tidy(raw)
		if out == "" {
			err = fmt.Errorf("%w: empty output", contract.ErrResponseInvalid)
		} else {
			timer.Finish("invoke", int64(tokens))
			diag.IncOp("llm_client", "finish", "success")
			diag.ObserveDuration("llm_client", "invoke", time.Since(*timer.Since()).Milliseconds())
			return out, nil
		}
	}
	if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: call exceeded %s", contract.ErrNetwork, r.opt.CallTimeout)
	}
	code := diag.Classify(err)
	var kv map[string]string
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv = map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			if len(m) > 200 {
				m = m[:200]
			}
			kv["upstream_msg"] = m
		}
	}
	log.ErrorWithKV("llm_client", string(code), "invoke failed", timer.Since(), "", p.Name, kv)
	diag.IncOp("llm_client", "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError("llm_client", string(code))
	}
	return "", err
}

// Outcome: 单个条目生成的终态。
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Exhausted
	Canceled
	Skipped // 前置条件不满足
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "success"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	case Canceled:
		return "canceled"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result: 单个条目的生成结果。Value 为最终写入字段的文本（取消时为空）。
type Result struct {
	Outcome Outcome
	Value   string
	Err     error
}

// Fill 为条目生成 task 指定的字段，并通过 write 写回中间/最终文本。
// 前置条件由调用方判定（批量用 Eligible，单条用 Ready）。
// 取消时不写最终标记，返回 Canceled。
func (r *Runner) Fill(ctx context.Context, it contract.Item, task Task, p Policy, write func(string)) Result {
	text, err := r.prompts.Build(ctx, task.Field, Input(it))
	if err != nil {
		v := FailureText(err)
		write(v)
		return Result{Outcome: Failed, Value: v, Err: err}
	}
	out, err := r.Complete(ctx, text, p, func(attempt int) {
		if ctx.Err() == nil {
			write(RetryMarker(attempt, p.MaxAttempts))
		}
	})
	switch {
	case err == nil:
		write(out)
		return Result{Outcome: Succeeded, Value: out}
	case ctx.Err() != nil:
		return Result{Outcome: Canceled, Err: ctx.Err()}
	case errors.Is(err, ErrRetriesExhausted):
		v := p.Exhausted
		if v == "" {
			v = FailureText(err)
		}
		write(v)
		return Result{Outcome: Exhausted, Value: v, Err: err}
	default:
		v := FailureText(err)
		write(v)
		return Result{Outcome: Failed, Value: v, Err: err}
	}
}

// RetryMarker 为第 attempt 次限流写入的中间标记。
func RetryMarker(attempt, max int) string {
	return fmt.Sprintf("Batas permintaan AI tercapai, mencoba lagi... (percobaan %d/%d)", attempt, max)
}

// FailureText 为终态失败写入的标记。
func FailureText(err error) string { return "Gagal diproses: " + Reason(err) }

// Reason 将失败归为规范原因文本。
func Reason(err error) string {
	var herr *contract.HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, contract.ErrCredentialMissing):
		return contract.ErrCredentialMissing.Error()
	case errors.Is(err, contract.ErrCredentialInvalid):
		return contract.ErrCredentialInvalid.Error()
	case errors.Is(err, contract.ErrNetwork):
		return contract.ErrNetwork.Error()
	case errors.As(err, &herr):
		return herr.Error()
	case errors.Is(err, contract.ErrResponseInvalid):
		return "Respons AI tidak valid."
	default:
		return err.Error()
	}
}

// Notice 种类。每次批量运行每类至多提示一次。
const (
	NoticeCredentialMissing = "credential_missing"
	NoticeCredentialInvalid = "credential_invalid"
	NoticeNetwork           = "network"
)

// NoticeFor 返回需要全局提示的失败种类与提示文本；其他失败返回 ok=false。
func NoticeFor(err error) (kind, msg string, ok bool) {
	switch {
	case errors.Is(err, contract.ErrCredentialMissing):
		return NoticeCredentialMissing, "Harap masukkan Kunci API Google AI Anda terlebih dahulu.", true
	case errors.Is(err, contract.ErrCredentialInvalid):
		return NoticeCredentialInvalid, "Kunci API tidak valid. Harap periksa kembali kunci API dari Google AI Studio dan coba lagi.", true
	case errors.Is(err, contract.ErrNetwork):
		return NoticeNetwork, "Gagal terhubung ke server AI. Mohon periksa koneksi internet Anda dan pastikan tidak ada pemblokir iklan (ad-blocker) atau firewall yang aktif.", true
	default:
		return "", "", false
	}
}

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
