package prompt

import (
	"fmt"

	"ppsplan/pkg/contract"
)

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// CheckBudget 估算提示词 token 并与单请求上限比较。
// maxTokens<=0 表示不限制；超限返回 ErrBudgetExceeded（调用方不应发出请求）。
func CheckBudget(est contract.TokenEstimator, prompt string, maxTokens int) (int, error) {
	n := est(prompt)
	if maxTokens > 0 && n > maxTokens {
		return n, fmt.Errorf("%w: prompt ~%d tokens > %d", contract.ErrBudgetExceeded, n, maxTokens)
	}
	return n, nil
}
