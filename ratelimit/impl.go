package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// limiter 限流器实现（非导出）
type limiter struct {
	cfg    *Config
	store  CounterStore
	logger clog.Logger
	meter  metrics.Meter
}

// newLimiter 创建限流器（内部函数）
// 注意：cfg 已在 New() 中调用 setDefaults()
func newLimiter(cfg *Config, store CounterStore, logger clog.Logger, meter metrics.Meter) *limiter {
	return &limiter{
		cfg:    cfg,
		store:  store,
		logger: logger,
		meter:  meter,
	}
}

// Check 对指定身份执行一次限流检查
func (l *limiter) Check(ctx context.Context, policy Policy, identity string) (Result, error) {
	if identity == "" {
		return Result{}, ErrIdentityEmpty
	}
	if err := policy.validate(); err != nil {
		// 策略无效属于接入配置错误，必须在日志中可见
		l.logger.Error("invalid rate limit policy",
			clog.String("policy", policy.Name),
			clog.Error(err))
		return Result{}, err
	}

	key := l.cfg.Prefix + policy.Name + ":" + identity

	// 接受即计数：自增先于判断，超限请求同样推进窗口
	count, ttl, err := l.store.Incr(ctx, key, policy.Window)
	if err != nil {
		// 直连存储出错时按本次放行处理：限流故障只影响精度，
		// 绝不放大为业务故障。生产部署应使用 NewFallbackStore。
		l.logger.Error("counter store error, admitting request",
			clog.String("policy", policy.Name),
			clog.Error(err))
		return Result{Allowed: true, Remaining: policy.Max, ResetAt: time.Now().Add(policy.Window)}, nil
	}
	if ttl <= 0 {
		ttl = policy.Window
	}

	now := time.Now()
	result := Result{
		ResetAt: now.Add(ttl),
	}
	if remaining := int64(policy.Max) - count; remaining > 0 {
		result.Remaining = int(remaining)
	}

	if count > int64(policy.Max) {
		result.RetryAfter = ttl
		l.count(ctx, policy.Name, false)
		l.logger.Warn("rate limit exceeded",
			clog.String("policy", policy.Name),
			clog.String("identity", identity),
			clog.Int64("count", count),
			clog.Int("max", policy.Max),
			clog.Duration("retry_after", ttl))
		return result, nil
	}

	result.Allowed = true
	result.Delay = l.slowdown(policy, count)
	l.count(ctx, policy.Name, true)

	if result.Delay > 0 {
		if l.meter != nil {
			if histogram, merr := l.meter.Histogram(MetricSlowdown, "Injected slowdown delay", metrics.WithUnit("seconds")); merr == nil {
				histogram.Record(ctx, result.Delay.Seconds(), metrics.L(LabelPolicy, policy.Name))
			}
		}
		l.logger.Debug("progressive slowdown",
			clog.String("policy", policy.Name),
			clog.String("identity", identity),
			clog.Int64("count", count),
			clog.Duration("delay", result.Delay))
	}

	return result, nil
}

// Allow 与 Check 相同，被拒绝时返回 *LimitExceededError
func (l *limiter) Allow(ctx context.Context, policy Policy, identity string) error {
	result, err := l.Check(ctx, policy, identity)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &LimitExceededError{
			Policy:     policy.Name,
			Identity:   identity,
			ResetAt:    result.ResetAt,
			RetryAfter: result.RetryAfter,
		}
	}
	return nil
}

// Close 释放底层存储资源
func (l *limiter) Close() error {
	return l.store.Close()
}

// slowdown 计算渐进减速延迟
// 用量在阈值与 100% 之间时，延迟从 0 线性增长到 SlowdownMaxDelay
func (l *limiter) slowdown(policy Policy, count int64) time.Duration {
	if policy.SlowdownThreshold <= 0 {
		return 0
	}
	usage := float64(count) / float64(policy.Max)
	if usage <= policy.SlowdownThreshold {
		return 0
	}
	if usage > 1 {
		usage = 1
	}
	fraction := (usage - policy.SlowdownThreshold) / (1 - policy.SlowdownThreshold)
	return time.Duration(fraction * float64(l.cfg.SlowdownMaxDelay))
}

// count 记录放行/拒绝指标
func (l *limiter) count(ctx context.Context, policy string, allowed bool) {
	if l.meter == nil {
		return
	}
	name, help := MetricAllowed, "Allowed requests"
	if !allowed {
		name, help = MetricDenied, "Denied requests"
	}
	if counter, err := l.meter.Counter(name, help); err == nil {
		counter.Inc(ctx, metrics.L(LabelPolicy, policy))
	}
}
