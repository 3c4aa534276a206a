package hierarchy

import (
	"errors"
	"testing"

	"ppsplan/pkg/contract"
)

func row(idx int, kv ...string) contract.Row {
	r := contract.Row{Index: idx}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Cells = append(r.Cells, contract.Cell{Name: kv[i], Value: kv[i+1]})
	}
	return r
}

// UT-HIE-01: 代码切分与段数校验。
func TestParseCode(t *testing.T) {
	c, err := ParseCode("1.2.3.4.5")
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	if c.Chapter != "1" || c.Standard != "2" || c.Criterion != "3" || c.Element != "4.5" {
		t.Fatalf("切分错误: %+v", c)
	}
	if c.String() != "1.2.3.4.5" {
		t.Fatalf("String 不可逆: %s", c.String())
	}
	for _, bad := range []string{"1.2.3", "bad-code", ""} {
		if _, err := ParseCode(bad); !errors.Is(err, contract.ErrMalformedCode) {
			t.Fatalf("%q 应返回 ErrMalformedCode, got %v", bad, err)
		}
	}
}

// UT-HIE-02: 两条合法记录 + 一条非法代码。
func TestBuildSkipsMalformed(t *testing.T) {
	rows := []contract.Row{
		row(0, "Kode EP", "1.1.1.1", "Uraian Elemen Penilaian", "A"),
		row(1, "Kode EP", "1.1.1.2", "Uraian Elemen Penilaian", "B"),
		row(2, "Kode EP", "bad-code", "Uraian Elemen Penilaian", "C"),
	}
	tree, st := Build(rows)
	if st.Rows != 3 || st.Items != 2 || len(st.Skipped) != 1 {
		t.Fatalf("计数错误: %+v", st)
	}
	if st.Skipped[0].Reason != SkipMalformedCode || st.Skipped[0].Index != 2 {
		t.Fatalf("跳过原因错误: %+v", st.Skipped[0])
	}
	if len(tree.Chapters) != 1 || tree.Chapters[0].Title != "BAB 1" {
		t.Fatalf("章节错误")
	}
	cr := tree.Chapters[0].Standards[0].Criteria[0]
	if cr.Title != "Kriteria 1" || tree.Chapters[0].Standards[0].Title != "Standar 1" {
		t.Fatalf("标题错误: %s", cr.Title)
	}
	if len(cr.Items) != 2 || cr.Items[0].ID != "1.1.1.1-0" || cr.Items[1].ID != "1.1.1.2-1" {
		t.Fatalf("条目错误: %+v", cr.Items)
	}
	if cr.Items[0].EvidenceTitle != contract.EvidencePlaceholder {
		t.Fatalf("keterangan 缺省应为占位: %q", cr.Items[0].EvidenceTitle)
	}
}

// UT-HIE-03: 列名归一化与别名。
func TestBuildColumnAliases(t *testing.T) {
	rows := []contract.Row{row(4,
		" BAB Standar  Kriteria Elemen Penilaian ", "2.3.4.5",
		"URAIAN ELEMEN PENILAIAN", "desc",
		"Rekomendasi Hasil Survey", "rek",
		"Rencana Perbaikan", "rtl",
		"Indikator", "ind",
		"Sasaran", "sas",
		"Waktu", "Jan",
		"PJ", "Kapus",
		"Keterangan", "SK Kepala",
	)}
	tree, st := Build(rows)
	if st.Items != 1 {
		t.Fatalf("应产生 1 条: %+v", st)
	}
	it := tree.Items()[0]
	want := contract.Item{
		ID: "2.3.4.5-4", Code: "2.3.4.5", Description: "desc", Recommendation: "rek",
		CorrectivePlan: "rtl", Indicator: "ind", Target: "sas", Timeline: "Jan", Responsible: "Kapus",
		EvidenceTitle: "SK Kepala",
	}
	if it != want {
		t.Fatalf("字段映射错误:\n got=%+v\nwant=%+v", it, want)
	}
}

// UT-HIE-03b: 归一化只去空白，带标点的表头不命中代码列。
func TestBuildPunctuatedHeaderSkipped(t *testing.T) {
	if got := NormalizeColumn(" BAB, Standar, Kriteria, Elemen Penilaian "); got != "bab,standar,kriteria,elemenpenilaian" {
		t.Fatalf("归一化错误: %q", got)
	}
	rows := []contract.Row{row(0,
		"BAB, Standar, Kriteria, Elemen Penilaian", "2.3.4.5",
		"Uraian Elemen Penilaian", "desc",
	)}
	tree, st := Build(rows)
	if !tree.Empty() || len(st.Skipped) != 1 || st.Skipped[0].Reason != SkipMissingCode {
		t.Fatalf("带标点的表头应被跳过: %+v", st)
	}
}

// UT-HIE-04: 缺少代码列或代码为空。
func TestBuildMissingCode(t *testing.T) {
	rows := []contract.Row{
		row(0, "Uraian Elemen Penilaian", "x"),
		row(1, "Kode", "   "),
	}
	tree, st := Build(rows)
	if !tree.Empty() || len(st.Skipped) != 2 {
		t.Fatalf("应全部跳过: %+v", st)
	}
	for _, s := range st.Skipped {
		if s.Reason != SkipMissingCode {
			t.Fatalf("原因应为 missing_code: %+v", s)
		}
	}
}

// UT-HIE-05: 多章节保持首次出现顺序。
func TestBuildPreservesOrder(t *testing.T) {
	rows := []contract.Row{
		row(0, "kode", "2.1.1.1"),
		row(1, "kode", "1.1.1.1"),
		row(2, "kode", "2.1.2.1"),
		row(3, "kode", "2.1.1.2"),
	}
	tree, _ := Build(rows)
	if tree.Chapters[0].Code != "2" || tree.Chapters[1].Code != "1" {
		t.Fatalf("章节顺序错误")
	}
	crs := tree.Chapters[0].Standards[0].Criteria
	if len(crs) != 2 || len(crs[0].Items) != 2 {
		t.Fatalf("准则聚合错误")
	}
	if NormalizeColumn(" Kode  EP ") != "kodeep" {
		t.Fatalf("NormalizeColumn 错误")
	}
}
