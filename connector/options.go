package connector

import "github.com/ceyewan/aegis/clog"

// Option 连接器初始化选项函数
type Option func(*options)

// options 连接器初始化选项配置（内部使用）
type options struct {
	logger clog.Logger
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
