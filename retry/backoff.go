package retry

import (
	"github.com/cenkalti/backoff/v4"
)

// newBackOff 按策略构造指数退避序列
//
// 名义延迟为 min(MaxTimeout, MinTimeout × Factor^(attempt-1))，
// 实际延迟在名义值 ±25% 内均匀抖动，避免多实例重试风暴同步化。
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinTimeout
	b.MaxInterval = p.MaxTimeout
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0.25
	// 尝试次数由编排器控制，不按耗时截断
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
