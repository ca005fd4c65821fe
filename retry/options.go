package retry

import (
	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	breaker    breaker.Registry
	classifier *Classifier
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "retry"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("retry")
		}
	}
}

// WithMeter 设置指标 Meter，nil 表示不上报指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithBreaker 设置熔断器注册表，重试包裹在熔断器外层
// 每次尝试独立经过熔断器，受类别策略超时约束；
// 熔断拒绝被分类为终态，不会消耗重试预算。
func WithBreaker(reg breaker.Registry) Option {
	return func(o *options) {
		o.breaker = reg
	}
}

// WithClassifier 设置自定义分类器，nil 时使用 NewClassifier()
func WithClassifier(c *Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// DoOption 单次调用选项函数
type DoOption func(*doOptions)

type doOptions struct {
	policy *Policy
	notify func(Attempt)
}

// WithPolicy 对单次调用覆盖类别策略
func WithPolicy(p Policy) DoOption {
	return func(o *doOptions) {
		p.setDefaults()
		o.policy = &p
	}
}

// WithNotify 注册失败尝试观测回调，每次失败尝试同步调用一次
func WithNotify(fn func(Attempt)) DoOption {
	return func(o *doOptions) {
		o.notify = fn
	}
}
