package apperr

import (
	"errors"
	"fmt"
	"time"
)

// 业务错误码定义
// 与 handler 层的 HTTP 状态码和数字错误码一一对应
var (
	// ErrUnauthenticated 缺少或无效的认证信息
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden 无权访问目标资源（非所有者且非管理员）
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound 对话或消息不存在
	ErrNotFound = errors.New("not found")

	// ErrUnknownModel 模型标识未注册
	ErrUnknownModel = errors.New("unknown model")

	// ErrUpstreamUnavailable 上游模型服务不可用（网络/服务端错误）
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrRateLimited 上游限流，可能携带建议的重试间隔
	ErrRateLimited = errors.New("rate limited")

	// ErrPersistenceFailure 流式生成完成后持久化失败
	// 客户端应只重试保存，不应重新触发生成
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrAborted 请求被取消（客户端断开或被新请求替换）
	// 不是面向用户的错误，仅记录日志
	ErrAborted = errors.New("aborted")
)

// RateLimitError 限流错误，携带上游建议的重试间隔
type RateLimitError struct {
	RetryAfter time.Duration // 0 表示上游未提供
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

// Unwrap 使 errors.Is(err, ErrRateLimited) 成立
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Upstream 包装上游错误为 ErrUpstreamUnavailable，保留原始错误信息用于日志
func Upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
