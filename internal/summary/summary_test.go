package summary

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppsplan/internal/generate"
	"ppsplan/pkg/contract"
)

type linesPB struct{ got []string }

func (p *linesPB) Build(context.Context, contract.Field, contract.PromptInput) (string, error) {
	return "", nil
}

func (p *linesPB) BuildSummary(_ context.Context, lines []string) (string, error) {
	p.got = lines
	return strings.Join(lines, "\n"), nil
}

type seq struct {
	errs []error
	out  string
	n    int
}

func (s *seq) Generate(context.Context, string) (string, error) {
	s.n++
	if len(s.errs) > 0 {
		e := s.errs[0]
		s.errs = s.errs[1:]
		return "", e
	}
	return s.out, nil
}

var fast = generate.Policy{Name: "summary", MaxAttempts: 3, RetryDelay: time.Millisecond}

func items() []contract.Item {
	return []contract.Item{
		{Code: "1.1.1.1", CorrectivePlan: "Audit dokumen SOP"},
		{Code: "1.1.1.2", CorrectivePlan: "Gagal diproses: NETWORK_ERROR"},
		{Code: "1.1.1.3", CorrectivePlan: "  Pelatihan staf  "},
	}
}

// UT-SUM-01: 只收集清洗后的 RTL
func TestLines(t *testing.T) {
	assert.Equal(t, []string{"Elemen 1.1.1.1: Audit dokumen SOP", "Elemen 1.1.1.3: Pelatihan staf"}, Lines(items()))
}

// UT-SUM-02: 没有 RTL 时不调用模型
func TestGenerateNoPlans(t *testing.T) {
	gen := &seq{out: "x"}
	r := generate.NewRunner(gen, &linesPB{}, generate.Options{})
	var last string
	out, err := Generate(context.Background(), r, []contract.Item{{Code: "1.1.1.1"}}, "", fast, func(v string) { last = v })
	require.NoError(t, err)
	assert.Equal(t, NoPlans, out)
	assert.Equal(t, NoPlans, last)
	assert.Equal(t, 0, gen.n)
}

// UT-SUM-03: 限流后成功
func TestGenerateRetryThenSuccess(t *testing.T) {
	gen := &seq{errs: []error{contract.ErrRateLimited}, out: "## Audit Mutu Internal\n- 1.1.1.1"}
	pb := &linesPB{}
	r := generate.NewRunner(gen, pb, generate.Options{})
	var writes []string
	out, err := Generate(context.Background(), r, items(), "", fast, func(v string) { writes = append(writes, v) })
	require.NoError(t, err)
	assert.Equal(t, "## Audit Mutu Internal\n- 1.1.1.1", out)
	assert.Len(t, pb.got, 2)
	require.Len(t, writes, 2, "调用前不清空旧总结")
	assert.Contains(t, writes[0], "(percobaan 1/3)")
	assert.Equal(t, out, writes[1])
}

// UT-SUM-05: 重试等待中被取消时恢复原有总结
func TestGenerateCancelRestoresPrevious(t *testing.T) {
	gen := &seq{errs: []error{contract.ErrRateLimited}, out: "baru"}
	r := generate.NewRunner(gen, &linesPB{}, generate.Options{})
	slow := generate.Policy{Name: "summary", MaxAttempts: 3, RetryDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writes []string
	out, err := Generate(ctx, r, items(), "lama", slow, func(v string) {
		writes = append(writes, v)
		if strings.Contains(v, "percobaan") {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "lama", out)
	require.Len(t, writes, 2)
	assert.Equal(t, "lama", writes[1], "取消后应写回原有总结")
	assert.Equal(t, 1, gen.n)
}

// UT-SUM-04: 失败与耗尽文本
func TestGenerateFailures(t *testing.T) {
	r := generate.NewRunner(&seq{errs: []error{contract.ErrCredentialInvalid}}, &linesPB{}, generate.Options{})
	out, err := Generate(context.Background(), r, items(), "", fast, func(string) {})
	assert.Error(t, err)
	assert.Equal(t, "**Terjadi Kesalahan:**\n\nGagal membuat kesimpulan. CREDENTIAL_INVALID", out)

	limited := []error{contract.ErrRateLimited, contract.ErrRateLimited, contract.ErrRateLimited}
	r = generate.NewRunner(&seq{errs: limited}, &linesPB{}, generate.Options{})
	out, err = Generate(context.Background(), r, items(), "", fast, func(string) {})
	assert.ErrorIs(t, err, generate.ErrRetriesExhausted)
	assert.Equal(t, Exhausted, out)
}
