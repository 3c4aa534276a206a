package generate

import (
	"fmt"

	"ppsplan/pkg/contract"
)

// Task: 一个可生成字段的定义。
// Sources 中任一字段清洗后非空即满足前置条件；否则写入 Insufficient 标记且不调用模型。
type Task struct {
	Field        contract.Field
	Sources      []contract.Field
	Insufficient string
}

var tasks = []Task{
	{
		Field:        contract.FieldCorrectivePlan,
		Sources:      []contract.Field{contract.FieldDescription, contract.FieldRecommendation},
		Insufficient: "Data tidak cukup untuk ide RTL",
	},
	{
		Field:        contract.FieldIndicator,
		Sources:      []contract.Field{contract.FieldDescription, contract.FieldCorrectivePlan},
		Insufficient: "Data tidak cukup untuk indikator",
	},
	{
		Field:        contract.FieldTarget,
		Sources:      []contract.Field{contract.FieldDescription, contract.FieldCorrectivePlan},
		Insufficient: "Data tidak cukup untuk sasaran",
	},
	{
		Field:        contract.FieldEvidenceTitle,
		Sources:      []contract.Field{contract.FieldCorrectivePlan, contract.FieldIndicator, contract.FieldTarget},
		Insufficient: "Input data tidak siap (isi RTL/Indikator/Sasaran)",
	},
}

// TaskFor 返回字段对应的生成任务；不可生成的字段返回 ErrInvalidInput。
func TaskFor(f contract.Field) (Task, error) {
	for _, t := range tasks {
		if t.Field == f {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("%w: field %q is not generatable", contract.ErrInvalidInput, f)
}

// Tasks 返回全部任务（固定顺序）。
func Tasks() []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// Ready 报告前置条件是否满足。
func (t Task) Ready(it contract.Item) bool {
	for _, f := range t.Sources {
		if Clean(it.Get(f)) != "" {
			return true
		}
	}
	return false
}

// Eligible: 前置条件满足且目标字段清洗后为空（空值或标记都可被重新生成）。
func (t Task) Eligible(it contract.Item) bool {
	return t.Ready(it) && Clean(it.Get(t.Field)) == ""
}
