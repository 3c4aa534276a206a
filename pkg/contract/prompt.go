package contract

import "context"

// PromptInput: 构造提示词所需的条目字段，全部已经过清洗。
// 清洗后的空串表示“无数据”，不得用占位/错误标记填充。
type PromptInput struct {
	Code           string
	Description    string
	Recommendation string
	CorrectivePlan string
	Indicator      string
	Target         string
}

// PromptBuilder: 按目标字段构造确定性的提示词文本。
// 约束：
//   - 纯计算，不做 I/O；
//   - 不隐式修改业务内容；
//   - 不支持的字段快速返回 ErrInvalidInput。
type PromptBuilder interface {
	Build(ctx context.Context, f Field, in PromptInput) (string, error)
	// BuildSummary: 以 "Elemen <code>: <rtl>" 行构造战略总结提示词。
	BuildSummary(ctx context.Context, lines []string) (string, error)
}

// TokenEstimator: 文本→token 的近似估算函数。
// 典型实现：ceil(len(utf8_bytes)/BytesPerToken)。
type TokenEstimator func(s string) int
