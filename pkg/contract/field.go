package contract

import (
	"fmt"
	"strings"
)

// Field: 条目字段名（生成目标与合并继承均以此寻址）。
type Field string

const (
	FieldDescription    Field = "description"
	FieldRecommendation Field = "recommendation"
	FieldCorrectivePlan Field = "corrective_plan"
	FieldIndicator      Field = "indicator"
	FieldTarget         Field = "target"
	FieldTimeline       Field = "timeline"
	FieldResponsible    Field = "responsible"
	FieldEvidenceTitle  Field = "evidence_title"
)

// MutableFields: 合并时可从历史快照继承的六个注释字段（顺序固定）。
var MutableFields = []Field{
	FieldCorrectivePlan,
	FieldIndicator,
	FieldTarget,
	FieldTimeline,
	FieldResponsible,
	FieldEvidenceTitle,
}

// 字段别名：英文名、持久化 JSON 键名与常用缩写。
var fieldAliases = map[string]Field{
	"description":        FieldDescription,
	"uraian_ep":          FieldDescription,
	"recommendation":     FieldRecommendation,
	"rekomendasi_survey": FieldRecommendation,
	"corrective_plan":    FieldCorrectivePlan,
	"rencana_perbaikan":  FieldCorrectivePlan,
	"rtl":                FieldCorrectivePlan,
	"indicator":          FieldIndicator,
	"indikator":          FieldIndicator,
	"target":             FieldTarget,
	"sasaran":            FieldTarget,
	"timeline":           FieldTimeline,
	"waktu":              FieldTimeline,
	"responsible":        FieldResponsible,
	"pj":                 FieldResponsible,
	"evidence_title":     FieldEvidenceTitle,
	"keterangan":         FieldEvidenceTitle,
}

// ParseField 解析字段名（大小写不敏感，接受别名）。
func ParseField(s string) (Field, error) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", ErrInvalidInput, s)
	}
	return f, nil
}

// Mutable 报告该字段是否为可变注释字段。
func (f Field) Mutable() bool {
	for _, m := range MutableFields {
		if m == f {
			return true
		}
	}
	return false
}

// Get 读取字段值；未知字段返回空串。
func (it *Item) Get(f Field) string {
	switch f {
	case FieldDescription:
		return it.Description
	case FieldRecommendation:
		return it.Recommendation
	case FieldCorrectivePlan:
		return it.CorrectivePlan
	case FieldIndicator:
		return it.Indicator
	case FieldTarget:
		return it.Target
	case FieldTimeline:
		return it.Timeline
	case FieldResponsible:
		return it.Responsible
	case FieldEvidenceTitle:
		return it.EvidenceTitle
	default:
		return ""
	}
}

// Set 写入可变注释字段；结构性或未知字段返回 false 且不修改。
func (it *Item) Set(f Field, v string) bool {
	switch f {
	case FieldCorrectivePlan:
		it.CorrectivePlan = v
	case FieldIndicator:
		it.Indicator = v
	case FieldTarget:
		it.Target = v
	case FieldTimeline:
		it.Timeline = v
	case FieldResponsible:
		it.Responsible = v
	case FieldEvidenceTitle:
		it.EvidenceTitle = v
	default:
		return false
	}
	return true
}

// EvidencePlaceholder: 证据文档标题的初始占位（清洗时视为空）。
const EvidencePlaceholder = "Klik 'Buat Keterangan'"
