// Package breaker 提供了熔断器组件，为任意异步操作（数据库调用、外部 API、
// 关键业务路径）提供故障隔离与自动恢复。
//
// breaker 是 Aegis 治理层的核心组件，它提供了：
// - 按操作类别（database / external_api / critical / file_ops）划分的策略包
// - 按名称独立熔断的注册表（显式对象，随应用启动构造并注入，无包级单例）
// - 基于时间分桶滚动窗口的失败率统计
// - 半开状态单飞探测（同一时刻只允许一个探测请求）
// - 类别级的用户安全降级错误，不泄露底层依赖细节
// - 运维介入操作：Reset / ResetAll / ForceOpen / ForceClose
// - 状态变更事件订阅，供健康聚合器与日志消费
// - gRPC Unary Interceptor 无侵入集成
//
// ## 基本使用
//
//	reg, _ := breaker.New(breaker.DefaultConfig(), breaker.WithLogger(logger))
//
//	result, err := reg.Execute(ctx, "DatabaseOperations", breaker.ClassDatabase,
//		func(ctx context.Context) (any, error) {
//			return db.QueryContext(ctx, query)
//		})
//	if err != nil {
//		var fb *breaker.FallbackError
//		if xerrors.As(err, &fb) {
//			// 熔断拒绝或超时：fb.Message 为用户安全文案
//		}
//	}
//
// ## 事件订阅
//
//	reg.Subscribe(func(e breaker.Event) {
//		if e.Type == breaker.EventOpen {
//			// 熔断器打开，通知告警
//		}
//	})
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"

	"google.golang.org/grpc"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Registry 熔断器注册表核心接口
// 每个名称对应一个独立的熔断器实例，首次使用时懒创建，随进程存活。
type Registry interface {
	// Execute 执行受熔断保护的函数
	// name: 熔断器名称（如 "DatabaseOperations"）
	// class: 操作类别，决定超时、阈值等策略
	// fn: 要执行的函数，必须尊重传入的 ctx（带有策略超时）
	//
	// 返回错误：
	//   - *FallbackError（包裹 ErrOpenState）: 熔断打开，fn 未被调用
	//   - *FallbackError（包裹 ErrTooManyProbes）: 半开探测位已被占用
	//   - *FallbackError（包裹 ErrTimeout）: fn 超过策略超时
	//   - 其他: fn 自身的错误，原样透传
	Execute(ctx context.Context, name string, class Class, fn func(ctx context.Context) (any, error)) (any, error)

	// State 获取指定名称的熔断器状态；不存在时返回 StateClosed
	State(name string) State

	// Snapshot 返回所有熔断器的只读状态快照，供健康聚合器消费
	Snapshot() map[string]Snapshot

	// Subscribe 注册事件监听器，接收所有熔断器的状态与调用事件
	// 监听器在调用完成路径上同步执行，必须保持轻量。
	Subscribe(l Listener)

	// Reset 将指定熔断器重置为 Closed 并清空计数器
	Reset(name string)

	// ResetAll 重置所有熔断器
	ResetAll()

	// ForceOpen 将指定熔断器强制固定在 Open 状态，直到 Reset / ForceClose
	ForceOpen(name string)

	// ForceClose 将指定熔断器强制固定在 Closed 状态，直到 Reset / ForceOpen
	ForceClose(name string)

	// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
	// 支持 InterceptorOption 配置 Key 生成策略
	UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Snapshot 单个熔断器的只读状态快照
type Snapshot struct {
	Name        string    `json:"name"`
	Class       Class     `json:"class"`
	State       string    `json:"state"`
	Requests    uint64    `json:"requests"`
	Successes   uint64    `json:"successes"`
	Failures    uint64    `json:"failures"`
	Timeouts    uint64    `json:"timeouts"`
	Rejects     uint64    `json:"rejects"`
	SuccessRate float64   `json:"success_rate"`
	FailureRate float64   `json:"failure_rate"`
	OpenedAt    time.Time `json:"opened_at,omitzero"`
	Forced      bool      `json:"forced,omitempty"`
}

// FallbackFunc 自定义降级函数
// 在熔断拒绝时被调用，返回 nil 表示降级成功（Execute 返回 nil 错误）。
type FallbackFunc func(ctx context.Context, name string, err error) error

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器注册表
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
//
// 参数:
//   - cfg: 配置，必填，可从 DefaultConfig() 出发修改
//   - opts: 可选参数 (Logger, Meter, Fallback, Listener)
func New(cfg *Config, opts ...Option) (Registry, error) {
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

	// 派生 Logger（添加 component 字段）
	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.With(clog.String("component", "breaker"))

	logger.Info("creating breaker registry",
		clog.Int("classes", len(cfg.Classes)),
		clog.Int("overrides", len(cfg.Overrides)))

	return newRegistry(cfg, logger, opt.meter, opt.fallback, opt.listeners)
}
