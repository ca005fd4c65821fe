package guard

import (
	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	breaker breaker.Registry
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "guard"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("guard")
		}
	}
}

// WithMeter 设置指标 Meter，nil 表示不上报指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithBreaker 设置熔断器注册表，降级判定读取打开的熔断器数量
// 不设置时降级只依据进程内存占比
func WithBreaker(reg breaker.Registry) Option {
	return func(o *options) {
		o.breaker = reg
	}
}
