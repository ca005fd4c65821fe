package health

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrRegistryNil 熔断器注册表为空
	ErrRegistryNil = xerrors.New("health: breaker registry is nil")

	// ErrUnknownBreaker 指定名称的熔断器未注册
	ErrUnknownBreaker = xerrors.New("health: unknown breaker")
)
