// Package ratelimit 提供了分层限流组件，支持共享存储和本地两种计数模式。
//
// ratelimit 是 Aegis 治理层的核心组件，它提供了：
// - 统一的 Limiter 接口，基于固定窗口计数
// - CounterStore 抽象：Redis + Lua 的共享计数（多实例精确限流）
//   与进程内本地计数（单实例近似）
// - 共享存储不可用时自动降级到本地计数，限流从不因存储故障而
//   整体失效或整体放行
// - 分层策略预设：global / auth / api / checkout / burst
// - 渐进减速：用量逼近阈值时按比例注入延迟，而不是硬切断
// - 突发检测：基于 golang.org/x/time/rate 的令牌桶
// - 开箱即用的 Gin 中间件与 gRPC 服务端拦截器
//
// ## 基本使用
//
//	store, _ := ratelimit.NewLocalStore(nil, ratelimit.WithLogger(logger))
//	limiter, _ := ratelimit.New(nil, store, ratelimit.WithLogger(logger))
//
//	result, _ := limiter.Check(ctx, ratelimit.PolicyAPI(), "user:123")
//	if !result.Allowed {
//	    // 请求被限流，result.RetryAfter 为建议的重试等待时间
//	}
//
// ## 共享存储 + 自动降级
//
//	redisConn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	shared, _ := ratelimit.NewRedisStore(redisConn, nil, ratelimit.WithLogger(logger))
//	local, _ := ratelimit.NewLocalStore(nil)
//	store := ratelimit.NewFallbackStore(shared, local, ratelimit.WithLogger(logger))
//	limiter, _ := ratelimit.New(nil, store, ratelimit.WithLogger(logger))
//
// ## Gin 中间件
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter, ratelimit.PolicyGlobal(), nil))
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Policy 限流策略（固定窗口计数）
type Policy struct {
	// Name 策略名，同时作为计数键前缀的一部分
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// Max 窗口内允许的最大请求数
	Max int `mapstructure:"max" yaml:"max" json:"max"`

	// Window 计数窗口时长
	Window time.Duration `mapstructure:"window" yaml:"window" json:"window"`

	// SlowdownThreshold 渐进减速阈值（0-1 的用量占比，0 表示关闭）
	// 用量超过阈值后，Check 返回与超出比例成正比的建议延迟
	SlowdownThreshold float64 `mapstructure:"slowdown_threshold" yaml:"slowdown_threshold" json:"slowdown_threshold"`
}

// Result 单次限流检查的结果
type Result struct {
	// Allowed 是否放行
	Allowed bool
	// Remaining 窗口内剩余配额
	Remaining int
	// ResetAt 窗口重置时间
	ResetAt time.Time
	// RetryAfter 被拒绝时建议的重试等待时间
	RetryAfter time.Duration
	// Delay 渐进减速建议的注入延迟，放行且用量超过阈值时非零
	Delay time.Duration
}

// Limiter 限流器核心接口
type Limiter interface {
	// Check 对指定身份执行一次限流检查（接受即计数）
	// 计数器总是先自增再判断：超限请求同样推进窗口计数。
	// 存储故障由 FallbackStore 内部消化，不会以 error 形式透出；
	// error 仅在输入无效（空身份、无效策略）时返回。
	Check(ctx context.Context, policy Policy, identity string) (Result, error)

	// Allow 与 Check 相同，但被拒绝时返回 *LimitExceededError
	// 适合非 HTTP 调用路径，错误中携带 ResetAt / RetryAfter
	Allow(ctx context.Context, policy Policy, identity string) error

	// Close 释放底层存储资源
	Close() error
}

// ========================================
// 策略预设 (Policy Presets)
// ========================================

// PolicyGlobal 全局兜底：单一身份 15 分钟 1000 次
func PolicyGlobal() Policy {
	return Policy{Name: "global", Max: 1000, Window: 15 * time.Minute, SlowdownThreshold: 0.8}
}

// PolicyAuth 认证接口：15 分钟 10 次，暴力破解防护
func PolicyAuth() Policy {
	return Policy{Name: "auth", Max: 10, Window: 15 * time.Minute}
}

// PolicyAPI 常规 API：每分钟 100 次
func PolicyAPI() Policy {
	return Policy{Name: "api", Max: 100, Window: time.Minute, SlowdownThreshold: 0.8}
}

// PolicyCheckout 下单接口：每分钟 5 次
func PolicyCheckout() Policy {
	return Policy{Name: "checkout", Max: 5, Window: time.Minute}
}

// validate 检查策略有效性
func (p Policy) validate() error {
	if p.Name == "" || p.Max <= 0 || p.Window <= 0 {
		return ErrInvalidPolicy
	}
	if p.SlowdownThreshold < 0 || p.SlowdownThreshold >= 1 {
		return ErrInvalidPolicy
	}
	return nil
}

// Identity 构造限流身份标识
// 已认证时使用 user:<id>，避免 NAT 后多租户共享一个地址桶；
// 未认证时退化为 ip:<addr>。
func Identity(userID, ip string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + ip
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 限流器配置
type Config struct {
	// Prefix 计数键前缀（默认："aegis:ratelimit:"）
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`

	// SlowdownMaxDelay 渐进减速的最大注入延迟（默认：2s）
	// 用量达到 100% 时注入此延迟，阈值与 100% 之间线性插值
	SlowdownMaxDelay time.Duration `mapstructure:"slowdown_max_delay" yaml:"slowdown_max_delay" json:"slowdown_max_delay"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults 填充配置缺省值
func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "aegis:ratelimit:"
	}
	if c.SlowdownMaxDelay == 0 {
		c.SlowdownMaxDelay = 2 * time.Second
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建限流器
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
//
// 参数:
//   - cfg: 配置，nil 时使用缺省值
//   - store: 计数存储，必填（NewRedisStore / NewLocalStore / NewFallbackStore）
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, store CounterStore, opts ...Option) (Limiter, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.With(clog.String("component", "ratelimit"))

	logger.Info("creating rate limiter",
		clog.String("prefix", cfg.Prefix),
		clog.Duration("slowdown_max_delay", cfg.SlowdownMaxDelay))

	return newLimiter(cfg, store, logger, opt.meter), nil
}
