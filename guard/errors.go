package guard

import (
	"fmt"

	"github.com/ceyewan/aegis/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("guard: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("guard: invalid configuration")

	// ErrValidationFailed 载荷校验失败
	ErrValidationFailed = xerrors.New("guard: payload validation failed")
)

// ValidationError 载荷校验拒绝错误
// 永不重试，总是以 400 透出给调用方
type ValidationError struct {
	// Source 命中位置 (path/query/body)
	Source string
	// Signature 命中的特征名
	Signature string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("guard: suspicious payload in %s (signature=%s)", e.Source, e.Signature)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
