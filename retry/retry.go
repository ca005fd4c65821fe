// Package retry 提供带错误分类与抖动指数退避的重试编排器。
//
// retry 负责把一个可能瞬时失败的异步操作（数据库调用、外部 API、
// 文件操作）重复执行到成功或预算耗尽：
// - 按操作类别（database / external_api / critical / file_ops）划分的重试策略
// - 封闭的错误分类表：只有显式注册为可重试的错误才会消耗重试预算，
//   校验、权限、冲突等终态错误在第一次失败时立即返回原始错误
// - 指数退避 + ±25% 对称抖动，避免重试风暴同步化
// - 可选与 breaker 组合：重试包裹在熔断器外层，每次尝试独立受
//   熔断策略超时约束，熔断拒绝不会被重试
//
// ## 基本使用
//
//	r, _ := retry.New(retry.DefaultConfig(), retry.WithLogger(logger))
//
//	err := r.Do(ctx, "SaveOrder", breaker.ClassDatabase,
//		func(ctx context.Context) error {
//			return db.SaveContext(ctx, order)
//		})
//
// ## 与熔断器组合
//
//	reg, _ := breaker.New(breaker.DefaultConfig())
//	r, _ := retry.New(retry.DefaultConfig(), retry.WithBreaker(reg))
//
// 组合后每次尝试都会经过熔断器：熔断打开时重试立即终止。
package retry

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Retryer 重试编排器核心接口
type Retryer interface {
	// Do 执行无返回值的操作，失败时按策略重试
	// name: 操作名（用于日志、指标与熔断器实例名）
	// class: 操作类别，决定重试次数与退避边界
	//
	// 返回错误：
	//   - 终态错误（校验、权限、冲突等）: 原始错误，只尝试一次
	//   - 预算耗尽: 最后一次的原始底层错误，不做泛化包装
	//   - ctx 取消: ctx.Err()
	Do(ctx context.Context, name string, class breaker.Class, fn func(ctx context.Context) error, opts ...DoOption) error

	// DoValue 执行有返回值的操作，失败时按策略重试
	DoValue(ctx context.Context, name string, class breaker.Class, fn func(ctx context.Context) (any, error), opts ...DoOption) (any, error)

	// Classifier 返回使用中的错误分类器，可用于注册额外规则
	Classifier() *Classifier
}

// Attempt 单次失败尝试的观测上下文
// 仅在一次重试包裹调用期间存在，不持久化。
type Attempt struct {
	// Operation 操作名
	Operation string
	// Class 操作类别
	Class breaker.Class
	// Number 尝试序号，从 1 开始
	Number int
	// RetriesLeft 剩余重试次数
	RetriesLeft int
	// Err 本次尝试的错误
	Err error
	// Category 分类结果
	Category Category
	// Rule 命中的分类规则名
	Rule string
	// Delay 下一次尝试前的退避延迟，终态/耗尽时为 0
	Delay time.Duration
	// Start 本轮重试包裹调用的开始时间
	Start time.Time
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建重试编排器
//
// 参数:
//   - cfg: 配置，必填，可从 DefaultConfig() 出发修改
//   - opts: 可选参数 (Logger, Meter, Breaker, Classifier)
func New(cfg *Config, opts ...Option) (Retryer, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.With(clog.String("component", "retry"))

	classifier := opt.classifier
	if classifier == nil {
		classifier = NewClassifier()
	}

	return newRetryer(cfg, logger, opt.meter, opt.breaker, classifier), nil
}
