package accreditation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ppsplan/pkg/contract"
)

// TestBuildDefault 测试内置模板渲染
func TestBuildDefault(t *testing.T) {
	b, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	in := contract.PromptInput{Code: "1.1.1.1", Description: "Ada SOP", Recommendation: "Sosialisasi", CorrectivePlan: "RTL-x", Indicator: "ind", Target: "sas"}
	cases := map[contract.Field][]string{
		contract.FieldCorrectivePlan: {"konsultan mutu", `"Ada SOP"`, `Rekomendasi Awal: "Sosialisasi"`},
		contract.FieldIndicator:      {"perencana mutu", `Rencana Perbaikan: "RTL-x"`},
		contract.FieldTarget:         {"manajer strategi", `"Ada SOP"`},
		contract.FieldEvidenceTitle:  {"auditor akreditasi", `Indikator: "ind"`, `Sasaran: "sas"`},
	}
	for f, wants := range cases {
		p, err := b.Build(context.Background(), f, in)
		if err != nil {
			t.Fatalf("build %s: %v", f, err)
		}
		for _, w := range wants {
			if !strings.Contains(p, w) {
				t.Fatalf("%s 提示词缺少 %q: %s", f, w, p)
			}
		}
	}
}

// TestBuildUnsupported 非生成字段快速失败
func TestBuildUnsupported(t *testing.T) {
	b, _ := New(nil)
	if _, err := b.Build(context.Background(), contract.FieldTimeline, contract.PromptInput{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, contract.FieldTarget, contract.PromptInput{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消的 ctx 应返回 Canceled: %v", err)
	}
}

// TestOverrides 测试字段模板覆盖与非法覆盖
func TestOverrides(t *testing.T) {
	b, err := New(&Options{Templates: map[string]string{"rtl": "RTL untuk {{.Code}}"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, _ := b.Build(context.Background(), contract.FieldCorrectivePlan, contract.PromptInput{Code: "9.9.9.9"})
	if p != "RTL untuk 9.9.9.9" {
		t.Fatalf("覆盖未生效: %q", p)
	}
	if _, err := New(&Options{Templates: map[string]string{"pj": "x"}}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("无生成任务的字段应拒绝: %v", err)
	}
	if _, err := New(&Options{Templates: map[string]string{"rtl": "{{"}}); err == nil {
		t.Fatalf("非法模板应报错")
	}
}

// TestBuildSummary 测试总结模板（内置与文件）
func TestBuildSummary(t *testing.T) {
	b, _ := New(nil)
	lines := []string{"Elemen 1.1.1.1: A", "Elemen 1.1.1.2: B"}
	p, err := b.BuildSummary(context.Background(), lines)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(p, "DATA RTL:\nElemen 1.1.1.1: A\nElemen 1.1.1.2: B\n") || !strings.Contains(p, "Audit Mutu Internal") {
		t.Fatalf("总结提示词错误: %s", p)
	}
	if _, err := b.BuildSummary(context.Background(), nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空行应返回 ErrInvalidInput")
	}

	path := filepath.Join(t.TempDir(), "sum.tmpl")
	if err := os.WriteFile(path, []byte("S:{{.Data}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	fb, err := New(&Options{SummaryTemplatePath: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p, _ := fb.BuildSummary(context.Background(), lines[:1]); p != "S:Elemen 1.1.1.1: A" {
		t.Fatalf("文件模板未生效: %q", p)
	}
	if _, err := New(&Options{SummaryTemplatePath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("缺失模板文件应报错")
	}
}
