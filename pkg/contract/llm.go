package contract

import (
	"context"
	"errors"
	"fmt"
)

// Generator: 文本生成能力。单次调用、同步返回。
// 约束：
// 1) 返回原始文本，不做清洗（清洗在 generate 层统一处理）；
// 2) 限流以 ErrRateLimited 表示，调用方据此退避重试；
// 3) 凭证/网络/HTTP 失败使用下方分类，调用方不重试；
// 4) 尊重 ctx 取消/超时并及时释放资源。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// 最小错误分类（用于上层策略判定）。
var (
	ErrRateLimited       = errors.New("RATE_LIMIT")
	ErrCredentialMissing = errors.New("CREDENTIAL_MISSING")
	ErrCredentialInvalid = errors.New("CREDENTIAL_INVALID")
	ErrNetwork           = errors.New("NETWORK_ERROR")
	ErrResponseInvalid   = errors.New("response invalid")
	ErrInvalidInput      = errors.New("invalid input")
)

// HTTPError: 上游返回的非成功状态（限流与凭证错误之外）。
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP_ERROR(%d)", e.Status)
	}
	return fmt.Sprintf("HTTP_ERROR(%d): %s", e.Status, e.Message)
}

func (e *HTTPError) UpstreamStatus() int     { return e.Status }
func (e *HTTPError) UpstreamMessage() string { return e.Message }

var _ UpstreamError = (*HTTPError)(nil)
