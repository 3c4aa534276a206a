package hierarchy

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"ppsplan/pkg/contract"
)

// 代码列识别：归一化列名包含任一别名即命中（按表头顺序取第一个）。
var codeColumnAliases = []string{"babstandarkriteriaelemenpenilaian", "kodeep", "kode"}

// 注释列别名（归一化后精确匹配，按顺序取第一个非空值）。
var columnAliases = map[contract.Field][]string{
	contract.FieldDescription:    {"uraianelemenpenilaian"},
	contract.FieldRecommendation: {"rekomendasihasilsurvey"},
	contract.FieldCorrectivePlan: {"rencanaperbaikan"},
	contract.FieldIndicator:      {"indikatorpencapaian", "indikator"},
	contract.FieldTarget:         {"sasaran"},
	contract.FieldTimeline:       {"waktupenyelesaian", "waktu"},
	contract.FieldResponsible:    {"penanggungjawab", "pj"},
	contract.FieldEvidenceTitle:  {"keterangan"},
}

// 跳过原因。
const (
	SkipMissingCode   = "missing_code"
	SkipMalformedCode = "malformed_code"
)

// Skip: 被跳过的记录（仅用于诊断）。
type Skip struct {
	Index  int
	Reason string
	Code   string
}

// Stats: 一次构建的计数。
type Stats struct {
	Rows    int
	Items   int
	Skipped []Skip
}

// NormalizeColumn: 去首尾空白、转小写、去除全部内部空白。
func NormalizeColumn(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
}

// normalizedRow: 归一化列名 → 值；同名列后者覆盖，顺序按首次出现。
type normalizedRow struct {
	order []string
	vals  map[string]string
}

func normalize(r contract.Row) normalizedRow {
	nr := normalizedRow{vals: make(map[string]string, len(r.Cells))}
	for _, c := range r.Cells {
		k := NormalizeColumn(c.Name)
		if _, seen := nr.vals[k]; !seen {
			nr.order = append(nr.order, k)
		}
		nr.vals[k] = c.Value
	}
	return nr
}

func (nr normalizedRow) codeColumn() (string, bool) {
	for _, k := range nr.order {
		for _, alias := range codeColumnAliases {
			if strings.Contains(k, alias) {
				return k, true
			}
		}
	}
	return "", false
}

func (nr normalizedRow) lookup(f contract.Field) string {
	for _, alias := range columnAliases[f] {
		if v := nr.vals[alias]; v != "" {
			return v
		}
	}
	return ""
}

// ItemIDFor 以 "<code>-<position>" 构造条目身份。
func ItemIDFor(code string, index int) contract.ItemID {
	return contract.ItemID(fmt.Sprintf("%s-%d", code, index))
}

// Build 从有序记录构建四级树。
// 无代码列、代码为空或代码格式不合法的记录被跳过并计入 Stats.Skipped；
// 返回的树可能为空，由调用方判定为 EMPTY_INPUT。
func Build(rows []contract.Row) (*contract.Tree, Stats) {
	tree := &contract.Tree{}
	st := Stats{Rows: len(rows)}
	for _, r := range rows {
		nr := normalize(r)
		key, ok := nr.codeColumn()
		raw := ""
		if ok {
			raw = strings.TrimSpace(nr.vals[key])
		}
		if raw == "" {
			st.Skipped = append(st.Skipped, Skip{Index: r.Index, Reason: SkipMissingCode})
			continue
		}
		code, err := ParseCode(raw)
		if err != nil {
			reason := SkipMalformedCode
			if !errors.Is(err, contract.ErrMalformedCode) {
				reason = err.Error()
			}
			st.Skipped = append(st.Skipped, Skip{Index: r.Index, Reason: reason, Code: raw})
			continue
		}
		cr := tree.
			EnsureChapter(code.Chapter, "BAB "+code.Chapter).
			EnsureStandard(code.Standard, "Standar "+code.Standard).
			EnsureCriterion(code.Criterion, "Kriteria "+code.Criterion)

		it := contract.Item{
			ID:             ItemIDFor(raw, r.Index),
			Code:           raw,
			Description:    nr.lookup(contract.FieldDescription),
			Recommendation: nr.lookup(contract.FieldRecommendation),
			CorrectivePlan: nr.lookup(contract.FieldCorrectivePlan),
			Indicator:      nr.lookup(contract.FieldIndicator),
			Target:         nr.lookup(contract.FieldTarget),
			Timeline:       nr.lookup(contract.FieldTimeline),
			Responsible:    nr.lookup(contract.FieldResponsible),
			EvidenceTitle:  nr.lookup(contract.FieldEvidenceTitle),
		}
		if it.EvidenceTitle == "" {
			it.EvidenceTitle = contract.EvidencePlaceholder
		}
		cr.Items = append(cr.Items, it)
		st.Items++
	}
	return tree, st
}
