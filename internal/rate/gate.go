package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"ppsplan/pkg/contract"
)

// LimitKey: 限流分组键（client + 凭证指纹）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次提示词 token 上限，0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token （>=0）
}

// Gate: 限流闸门（并发安全）。每次生成调用前都要经过它。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false 且不消耗额度。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
// 两个维度各由一个 x/time/rate 令牌桶承担，容量为每分钟额度，匀速补充。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req *xrate.Limiter // nil 表示该维度关闭
	tok *xrate.Limiter
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		e.req = perMinute(lim.RPM)
	}
	if lim.TPM > 0 {
		e.tok = perMinute(lim.TPM)
	}
	return e
}

func perMinute(n int) *xrate.Limiter {
	return xrate.NewLimiter(xrate.Limit(float64(n)/60.0), n)
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

// reserve 在 now 时刻同时预订两个维度；返回需等待时长与撤销函数。
// ok=false 表示申请量超过桶容量，永远无法满足。
func (e *entry) reserve(now time.Time, a Ask) (delay time.Duration, undo func(), ok bool) {
	var rs []*xrate.Reservation
	undo = func() {
		for _, r := range rs {
			r.CancelAt(now)
		}
	}
	take := func(l *xrate.Limiter, n int) bool {
		if l == nil || n <= 0 {
			return true
		}
		r := l.ReserveN(now, n)
		if !r.OK() {
			return false
		}
		rs = append(rs, r)
		if d := r.DelayFrom(now); d > delay {
			delay = d
		}
		return true
	}
	if !take(e.req, a.Requests) || !take(e.tok, a.Tokens) {
		undo()
		return 0, nil, false
	}
	return delay, undo, true
}

func (g *gate) admissible(e *entry, a Ask) bool {
	if a.Requests <= 0 || a.Tokens < 0 {
		return false
	}
	return e.lim.MaxTokensPerReq <= 0 || a.Tokens <= e.lim.MaxTokensPerReq
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if !g.admissible(e, a) {
		return false
	}
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	delay, undo, ok := e.reserve(now, a)
	if !ok {
		return false
	}
	if delay > 0 {
		undo()
		return false
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if !g.admissible(e, a) {
		return contract.ErrInvalidInput
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	now := g.clk()
	e.mu.Lock()
	delay, undo, ok := e.reserve(now, a)
	e.mu.Unlock()
	if !ok {
		return contract.ErrBudgetExceeded
	}
	if delay <= 0 {
		return nil
	}
	if err := sleepCtx(ctx, delay); err != nil {
		e.mu.Lock()
		undo()
		e.mu.Unlock()
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot: 返回当前可用请求/令牌的“向下取整”估值（仅诊断）。
func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	avail := func(l *xrate.Limiter) int {
		if l == nil {
			return 0
		}
		v := l.TokensAt(now)
		if v < 0 {
			return 0
		}
		return int(v)
	}
	return avail(e.req), avail(e.tok)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
