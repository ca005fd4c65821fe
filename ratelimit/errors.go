package ratelimit

import (
	"fmt"
	"time"

	"github.com/ceyewan/aegis/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("ratelimit: config is nil")

	// ErrStoreNil 计数存储为空
	ErrStoreNil = xerrors.New("ratelimit: counter store is nil")

	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("ratelimit: connector is nil")

	// ErrIdentityEmpty 限流身份为空
	ErrIdentityEmpty = xerrors.New("ratelimit: identity is empty")

	// ErrInvalidPolicy 限流策略无效
	ErrInvalidPolicy = xerrors.New("ratelimit: invalid policy")

	// ErrRateLimitExceeded 限流阈值超出
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
)

// LimitExceededError 限流拒绝错误
//
// 携带调用方可操作的元数据（重置时间、建议等待时长），
// 重试编排器将其分类为终态，绝不在内部重试。
type LimitExceededError struct {
	// Policy 触发的策略名
	Policy string
	// Identity 被限流的身份
	Identity string
	// ResetAt 窗口重置时间
	ResetAt time.Time
	// RetryAfter 建议的重试等待时间
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %s limit exceeded for %s, retry after %s",
		e.Policy, e.Identity, e.RetryAfter.Round(time.Second))
}

func (e *LimitExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}
