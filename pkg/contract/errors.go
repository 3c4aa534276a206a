package contract

import "errors"

// 结构/持久化相关最小错误分类。
var (
	// ErrMalformedCode: 层级代码少于 4 段；调用方跳过该行，不致命。
	ErrMalformedCode = errors.New("MALFORMED_CODE")
	// ErrEmptyInput: 整个输入未产生任何节点；导入被拒绝。
	ErrEmptyInput = errors.New("EMPTY_INPUT")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrNotFound: 条目或快照不存在。
	ErrNotFound = errors.New("not found")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
