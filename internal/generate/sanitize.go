// Package generate 负责单个字段的生成：输入清洗、前置条件、限流重试与结果/标记写回。
package generate

import (
	"strings"

	"ppsplan/pkg/contract"
)

// 占位与错误标记。字段值（去首尾空白后）包含任一子串即视为“无数据”。
var markers = []string{
	contract.EvidencePlaceholder,
	"Gagal diproses",
	"Input data tidak siap",
	"Batas permintaan AI tercapai",
	"Data tidak cukup",
	"Gagal setelah beberapa percobaan",
}

// Clean 去首尾空白；含占位/错误标记时返回空串。
// 生成提示词、资格判定、总结与文档清单都只使用清洗后的值。
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return ""
		}
	}
	return s
}

// IsMarker 报告值是否为标记（非空且清洗后为空）。
func IsMarker(s string) bool {
	return strings.TrimSpace(s) != "" && Clean(s) == ""
}

// Input 从条目构造清洗后的提示词输入。
func Input(it contract.Item) contract.PromptInput {
	return contract.PromptInput{
		Code:           it.Code,
		Description:    Clean(it.Description),
		Recommendation: Clean(it.Recommendation),
		CorrectivePlan: Clean(it.CorrectivePlan),
		Indicator:      Clean(it.Indicator),
		Target:         Clean(it.Target),
	}
}

// tidy 规整模型输出：去首尾空白，并各去掉一个首/尾双引号。
func tidy(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return s
}
