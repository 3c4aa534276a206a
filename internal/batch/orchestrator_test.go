package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ppsplan/internal/generate"
	"ppsplan/internal/session"
	"ppsplan/pkg/contract"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type codePB struct{}

func (codePB) Build(_ context.Context, _ contract.Field, in contract.PromptInput) (string, error) {
	return in.Code, nil
}
func (codePB) BuildSummary(context.Context, []string) (string, error) { return "", nil }

// recorder 记录每次调用的起止与并发峰值。
type recorder struct {
	delay time.Duration
	err   error
	block bool

	mu       sync.Mutex
	inflight int
	peak     int
	calls    int32
	starts   map[string]time.Time
	ends     map[string]time.Time
}

func newRecorder() *recorder {
	return &recorder{starts: map[string]time.Time{}, ends: map[string]time.Time{}}
}

func (p *recorder) Generate(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	p.inflight++
	if p.inflight > p.peak {
		p.peak = p.inflight
	}
	p.starts[prompt] = time.Now()
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight--
		p.ends[prompt] = time.Now()
		p.mu.Unlock()
	}()
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return "", p.err
	}
	return "RTL " + prompt, nil
}

func (p *recorder) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

func newSession(n int) *session.Session {
	tr := &contract.Tree{}
	cr := tr.EnsureChapter("1", "BAB 1").EnsureStandard("1", "Standar 1").EnsureCriterion("1", "Kriteria 1")
	for i := 0; i < n; i++ {
		code := fmt.Sprintf("1.1.1.%d", i+1)
		cr.Items = append(cr.Items, contract.Item{
			ID: contract.ItemID(fmt.Sprintf("%s-%d", code, i)), Code: code, Description: "uraian " + code,
			EvidenceTitle: contract.EvidencePlaceholder,
		})
	}
	return session.New(contract.SnapshotKey{Namespace: "ns", Owner: "u", FileName: "a.xlsx"}, "a.xlsx", tr, "")
}

var fastPolicy = generate.Policy{Name: "test", MaxAttempts: 3, RetryDelay: time.Millisecond, Exhausted: generate.BatchPolicy.Exhausted}

func orchestrator(s *session.Session, gen contract.Generator) *Orchestrator {
	r := generate.NewRunner(gen, codePB{}, generate.Options{})
	return New(s, r, Options{ChunkSize: 5, Cooldown: 5 * time.Millisecond, Policy: fastPolicy})
}

// UT-BAT-01: 12 条 → 5/5/2 三个分块，严格顺序
func TestRunChunksSequential(t *testing.T) {
	s := newSession(12)
	gen := newRecorder()
	gen.delay = 10 * time.Millisecond
	o := orchestrator(s, gen)

	var progress []Progress
	res, err := o.Run(context.Background(), contract.FieldCorrectivePlan, func(p Progress) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 12, Success: 12}, res)

	require.Len(t, progress, 3)
	assert.Equal(t, []int{5, 10, 12}, []int{progress[0].Completed, progress[1].Completed, progress[2].Completed})
	assert.Equal(t, 3, progress[2].Chunks)
	assert.LessOrEqual(t, gen.peak, 5, "块内并发不超过分块大小")

	// 第 2 块的任何调用都在第 1 块全部结束之后开始
	var lastEnd1 time.Time
	for i := 1; i <= 5; i++ {
		if e := gen.ends[fmt.Sprintf("1.1.1.%d", i)]; e.After(lastEnd1) {
			lastEnd1 = e
		}
	}
	for i := 6; i <= 10; i++ {
		assert.False(t, gen.starts[fmt.Sprintf("1.1.1.%d", i)].Before(lastEnd1), "分块 2 提前开始")
	}

	for _, it := range s.Items() {
		assert.Equal(t, "RTL "+it.Code, it.CorrectivePlan)
	}
	p, active := o.Status()
	assert.False(t, active)
	assert.Equal(t, 12, p.Completed)
}

// UT-BAT-02: 中止：不启动新分块，进行中条目记为取消且不写标记
func TestRunAbort(t *testing.T) {
	s := newSession(12)
	gen := newRecorder()
	gen.block = true
	o := orchestrator(s, gen)

	type out struct {
		res Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := o.Run(context.Background(), contract.FieldCorrectivePlan, nil)
		done <- out{res, err}
	}()
	require.Eventually(t, func() bool { return gen.inFlight() == 5 }, time.Second, time.Millisecond)

	_, err := o.Run(context.Background(), contract.FieldIndicator, nil)
	assert.ErrorIs(t, err, ErrBusy, "任意字段的第二个运行都应被拒绝")

	require.True(t, o.Abort())
	got := <-done
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.True(t, got.res.Aborted)
	assert.Equal(t, 5, got.res.Canceled)
	assert.Equal(t, 0, got.res.Success+got.res.Failed)
	assert.EqualValues(t, 5, atomic.LoadInt32(&gen.calls), "中止后不应启动新分块")
	for _, it := range s.Items() {
		assert.Empty(t, it.CorrectivePlan, "取消的条目不写终态标记")
	}
	assert.False(t, o.Abort(), "无运行时 Abort 返回 false")
}

// UT-BAT-03: ctx 取消等价于中止
func TestRunContextCancel(t *testing.T) {
	s := newSession(3)
	gen := newRecorder()
	gen.block = true
	o := orchestrator(s, gen)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := o.Run(ctx, contract.FieldCorrectivePlan, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, res.Canceled)
}

// UT-BAT-04: 没有符合条件的条目
func TestRunNothingToDo(t *testing.T) {
	s := newSession(2)
	o := orchestrator(s, newRecorder())
	_, err := o.Run(context.Background(), contract.FieldEvidenceTitle, nil)
	assert.ErrorIs(t, err, ErrNothingToDo, "RTL/Indikator/Sasaran 全空")
	_, active := o.Status()
	assert.False(t, active)

	_, err = o.Run(context.Background(), contract.FieldTimeline, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// UT-BAT-05: 网络失败每类只提示一次，不影响同块其他条目
func TestRunNoticesDeduplicated(t *testing.T) {
	s := newSession(7)
	gen := newRecorder()
	gen.err = contract.ErrNetwork
	o := orchestrator(s, gen)
	res, err := o.Run(context.Background(), contract.FieldCorrectivePlan, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Failed)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, generate.NoticeNetwork, res.Notices[0].Kind)
	for _, it := range s.Items() {
		assert.Equal(t, "Gagal diproses: NETWORK_ERROR", it.CorrectivePlan)
	}

	// 失败标记可被下一次运行重新选中
	assert.Equal(t, 7, Regenerations(s.Items(), contract.FieldCorrectivePlan))
	gen.err = nil
	res, err = o.Run(context.Background(), contract.FieldCorrectivePlan, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Success)
}

// UT-BAT-07: 分块之间等待冷却，最后一块之后不等待
func TestRunCooldownSkippedAfterLastChunk(t *testing.T) {
	run := func(n int) time.Duration {
		s := newSession(n)
		r := generate.NewRunner(newRecorder(), codePB{}, generate.Options{})
		o := New(s, r, Options{ChunkSize: 5, Cooldown: 300 * time.Millisecond, Policy: fastPolicy})
		start := time.Now()
		_, err := o.Run(context.Background(), contract.FieldCorrectivePlan, nil)
		require.NoError(t, err)
		return time.Since(start)
	}
	assert.Less(t, run(5), 300*time.Millisecond, "单个分块不应等待冷却")
	assert.GreaterOrEqual(t, run(6), 300*time.Millisecond, "两个分块之间应等待冷却")
}

// UT-BAT-06: 资格筛选保持树顺序
func TestEligible(t *testing.T) {
	task, _ := generate.TaskFor(contract.FieldIndicator)
	items := []contract.Item{
		{ID: "a", Description: "d"},
		{ID: "b"},
		{ID: "c", CorrectivePlan: "rtl", Indicator: "Batas permintaan AI tercapai, mencoba lagi... (percobaan 1/3)"},
		{ID: "d", Description: "d", Indicator: "sudah"},
	}
	got := Eligible(items, task)
	require.Len(t, got, 2)
	assert.Equal(t, contract.ItemID("a"), got[0].ID)
	assert.Equal(t, contract.ItemID("c"), got[1].ID)
	assert.Equal(t, 1, Regenerations(items, contract.FieldIndicator))
}

func TestDefaults(t *testing.T) {
	o := New(newSession(1), nil, Options{Cooldown: -1})
	assert.Equal(t, DefaultChunkSize, o.opt.ChunkSize)
	assert.Equal(t, time.Duration(0), o.opt.Cooldown)
	assert.Equal(t, generate.BatchPolicy, o.opt.Policy)
	assert.True(t, errors.Is(fmt.Errorf("%w", ErrBusy), ErrBusy))
}
