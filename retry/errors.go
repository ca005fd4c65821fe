package retry

import "github.com/ceyewan/aegis/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("retry: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("retry: invalid configuration")

	// ErrNameEmpty 操作名为空
	ErrNameEmpty = xerrors.New("retry: operation name is empty")
)
