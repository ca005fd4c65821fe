package health

import (
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/guard"
	"github.com/ceyewan/aegis/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	degrader *guard.Degrader
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "health"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("health")
		}
	}
}

// WithMeter 设置指标 Meter，nil 表示不上报指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithDegrader 设置降级判定器，快照中将包含当前降级模式
// 不设置时 degradation_mode 恒为 "normal"。
func WithDegrader(d *guard.Degrader) Option {
	return func(o *options) {
		o.degrader = d
	}
}
