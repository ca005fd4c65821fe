package breaker

import (
	"fmt"

	"github.com/ceyewan/aegis/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("breaker: invalid configuration")

	// ErrNameEmpty 熔断器名称为空
	ErrNameEmpty = xerrors.New("breaker: name is empty")

	// ErrOpenState 熔断器处于打开状态，请求被快速拒绝
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")

	// ErrTooManyProbes 半开状态下探测位已被占用
	ErrTooManyProbes = xerrors.New("breaker: probe slot occupied in half-open state")

	// ErrTimeout 操作超过策略超时
	ErrTimeout = xerrors.New("breaker: operation timed out")
)

// FallbackError 类别级的用户安全降级错误
//
// 熔断拒绝与超时不透传底层依赖的错误细节，
// 调用方通过 xerrors.Is(err, ErrOpenState) 等判断具体原因。
type FallbackError struct {
	// Name 熔断器名称
	Name string
	// Class 操作类别
	Class Class
	// Message 用户安全文案，来自策略的 UserMessage
	Message string
	// Err 底层原因（ErrOpenState / ErrTooManyProbes / ErrTimeout）
	Err error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s (breaker=%s)", e.Message, e.Name)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}
