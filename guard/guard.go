// Package guard 提供了请求入口的防护中间件链：关联标识、体积限制、
// 请求超时、载荷校验与优雅降级。
//
// guard 是 Aegis 治理层的入口组件，它提供了：
// - 关联标识：为每个请求分配 request id，贯穿日志与下游调用
// - 体积限制：超过上限的请求体直接 413，防止载荷攻击
// - 请求超时：超时请求返回 408，迟到的 handler 完成不会写入已
//   处置的响应，但其结果仍会计入熔断/重试统计
// - 载荷校验：编译好的特征表拦截脚本注入 / SQL 注入 / 路径穿越，
//   这是廉价的启发式过滤，不能替代参数化查询
// - 优雅降级：按进程内存占比与打开的熔断器数量逐请求计算降级
//   模式，写入请求上下文供业务分支判断；只读模式下写请求被拒绝
// - 按路由类别的预设组合（auth / api / checkout）
//
// 每个防护可独立启停，失败只影响触发它的那一个请求。
//
// ## 基本使用
//
//	g, _ := guard.New(guard.DefaultConfig(),
//		guard.WithLogger(logger),
//		guard.WithBreaker(registry))
//
//	r := gin.New()
//	r.Use(g.Chain()...)
//
// ## 按路由类别使用预设
//
//	auth := r.Group("/auth", g.Preset(guard.PresetAuth)...)
//	checkout := r.Group("/checkout", g.Preset(guard.PresetCheckout)...)
package guard

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Config 防护链配置
type Config struct {
	// MaxBodyBytes 请求体上限（默认：10 MiB）
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`

	// Timeout 请求处理超时（默认：30s）
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// MemoryThreshold 触发非关键路径降级的堆内存占比（默认：0.8）
	MemoryThreshold float64 `mapstructure:"memory_threshold" yaml:"memory_threshold" json:"memory_threshold"`

	// OpenBreakerLimit 容忍的打开熔断器数量，超过即进入只读模式（默认：1）
	OpenBreakerLimit int `mapstructure:"open_breaker_limit" yaml:"open_breaker_limit" json:"open_breaker_limit"`
}

// setDefaults 填充配置缺省值
func (c *Config) setDefaults() {
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MemoryThreshold == 0 {
		c.MemoryThreshold = 0.8
	}
	if c.OpenBreakerLimit == 0 {
		c.OpenBreakerLimit = 1
	}
}

// DefaultConfig 返回缺省配置
func DefaultConfig() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Guard 请求防护链
// 通过方法暴露单个中间件，通过 Chain / Preset 暴露组合
type Guard struct {
	cfg      *Config
	logger   clog.Logger
	meter    metrics.Meter
	degrader *Degrader
}

// New 创建请求防护链
//
// 参数:
//   - cfg: 配置，必填，可从 DefaultConfig() 出发修改
//   - opts: 可选参数 (Logger, Meter, Breaker)
func New(cfg *Config, opts ...Option) (*Guard, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if cfg.MemoryThreshold < 0 || cfg.MemoryThreshold > 1 {
		return nil, ErrInvalidConfig
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.With(clog.String("component", "guard"))

	g := &Guard{
		cfg:    cfg,
		logger: logger,
		meter:  opt.meter,
		degrader: newDegrader(
			opt.breaker,
			cfg.MemoryThreshold,
			cfg.OpenBreakerLimit,
			logger,
		),
	}

	logger.Info("creating request guard",
		clog.Int64("max_body_bytes", cfg.MaxBodyBytes),
		clog.Duration("timeout", cfg.Timeout),
		clog.Float64("memory_threshold", cfg.MemoryThreshold),
		clog.Int("open_breaker_limit", cfg.OpenBreakerLimit))

	return g, nil
}

// Degrader 返回降级判定器，供健康聚合器读取当前模式
func (g *Guard) Degrader() *Degrader {
	return g.degrader
}

// Chain 返回完整的防护链，按固定顺序组合：
// 关联标识 → 体积限制 → 超时 → 载荷校验 → 降级
func (g *Guard) Chain() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		g.Correlation(),
		g.BodyLimit(),
		g.Timeout(),
		g.Validation(),
		g.Degradation(),
	}
}

// reject 记录一次防护拒绝
func (g *Guard) reject(c *gin.Context, guardName, reason string) {
	g.logger.WarnContext(c.Request.Context(), "request rejected by guard",
		clog.String("guard", guardName),
		clog.String("reason", reason),
		clog.String("method", c.Request.Method),
		clog.String("path", c.Request.URL.Path))

	g.countReject(c.Request.Context(), guardName, reason)
}

// countReject 记录防护拒绝指标
func (g *Guard) countReject(ctx context.Context, guardName, reason string) {
	if g.meter == nil {
		return
	}
	if counter, err := g.meter.Counter(MetricRejectsTotal, "Requests rejected by guards"); err == nil {
		counter.Inc(ctx,
			metrics.L(LabelGuard, guardName),
			metrics.L(LabelReason, reason))
	}
}
