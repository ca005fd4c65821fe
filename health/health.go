// Package health 提供健康聚合与运维介入能力
//
// 聚合器（Aggregator）是只读的：它汇总熔断器注册表、降级判定器与进程
// 运行时信息，生成一份可序列化的健康快照，供 GET /health 或监控采集
// 消费，绝不修改任何被观测组件的状态。
//
// 运维操作（Admin）是独立类型：ResetAll / ForceOpen / ForceClose 直接
// 作用于熔断器注册表，与只读路径刻意分离，便于在路由层施加不同的
// 访问控制。
//
// 使用示例：
//
//	agg, err := health.New(&health.Config{Service: "orders"}, registry,
//		health.WithDegrader(g.Degrader()),
//		health.WithLogger(logger),
//	)
//	agg.RegisterRoutes(router)
//
//	admin := health.NewAdmin(registry, health.WithLogger(logger))
//	admin.RegisterRoutes(router.Group("/admin"))
package health

import (
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/gin-gonic/gin"
)

// ======== 接口定义 ========

// Aggregator 健康聚合器，只读
type Aggregator interface {
	// Snapshot 汇总当前健康状态
	// 每次调用实时采集，不做缓存
	Snapshot() Snapshot

	// RegisterRoutes 注册 GET /health 路由
	RegisterRoutes(r gin.IRouter)
}

// Admin 运维介入操作，与只读路径分离
type Admin interface {
	// ResetAll 重置所有熔断器为 Closed 并清空计数器，幂等
	ResetAll()

	// Reset 重置指定熔断器，名称未注册时返回 ErrUnknownBreaker
	Reset(name string) error

	// ForceOpen 将指定熔断器强制固定在 Open 状态
	ForceOpen(name string) error

	// ForceClose 将指定熔断器强制固定在 Closed 状态
	ForceClose(name string) error

	// RegisterRoutes 注册 POST /breakers/... 运维路由
	// 调用方应在带访问控制的路由组上注册（如 /admin）。
	RegisterRoutes(r gin.IRouter)
}

// ======== 配置定义 ========

// Config 健康聚合器配置
type Config struct {
	// Service 服务名，出现在快照的 service 字段，可为空
	Service string `json:"service" mapstructure:"service"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{}
}

// ======== 快照类型 ========

// Snapshot 一次健康采集的结果
type Snapshot struct {
	Status          string                      `json:"status"` // ok / degraded
	Service         string                      `json:"service,omitempty"`
	Time            time.Time                   `json:"time"`
	DegradationMode string                      `json:"degradation_mode"`
	Breakers        map[string]breaker.Snapshot `json:"breakers"`
	Process         ProcessStats                `json:"process"`
}

// ProcessStats 进程运行时信息
type ProcessStats struct {
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	HeapRatio      float64 `json:"heap_ratio"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// StatusOK / StatusDegraded 快照 Status 字段的取值
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ======== 工厂函数 ========

// New 创建健康聚合器
// cfg: 配置，nil 等价于 DefaultConfig()
// registry: 被观测的熔断器注册表，必填
func New(cfg *Config, registry breaker.Registry, opts ...Option) (Aggregator, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return newAggregator(cfg, registry, opts...)
}

// NewAdmin 创建运维操作入口
// registry: 熔断器注册表，必填
func NewAdmin(registry breaker.Registry, opts ...Option) (Admin, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}
	return newAdmin(registry, opts...)
}
