package connector

import "github.com/ceyewan/aegis/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("connector: config is nil")

	// ErrAddrEmpty 连接地址为空
	ErrAddrEmpty = xerrors.New("connector: addr is empty")
)
