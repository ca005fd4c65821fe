package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// fallbackStore 带自动降级的计数存储（非导出）
//
// 正常路径走共享存储保证多实例精确计数；共享存储出错时
// 降级到本地计数，限流精度退化为单实例近似，但从不整体
// 放行也从不整体拒绝。每次故障事件只记录一条错误日志，
// 恢复后记录一条恢复日志，避免故障期间刷屏。
type fallbackStore struct {
	shared CounterStore
	local  CounterStore
	logger clog.Logger
	meter  metrics.Meter

	degraded atomic.Bool
}

// NewFallbackStore 创建带自动降级的计数存储
//
// 参数:
//   - shared: 共享存储（通常为 NewRedisStore）
//   - local: 本地存储（通常为 NewLocalStore）
//   - opts: 可选参数 (Logger, Meter)
func NewFallbackStore(shared, local CounterStore, opts ...Option) CounterStore {
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	return &fallbackStore{
		shared: shared,
		local:  local,
		logger: logger,
		meter:  opt.meter,
	}
}

// Incr 优先走共享存储，失败时降级到本地计数
func (s *fallbackStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, ttl, err := s.shared.Incr(ctx, key, window)
	if err == nil {
		if s.degraded.CompareAndSwap(true, false) {
			s.logger.Info("shared counter store recovered, resuming fleet-wide limiting")
		}
		return count, ttl, nil
	}

	// 每次故障事件只记录一次
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Error("shared counter store unavailable, serving local approximation",
			clog.Error(err))
	}
	if s.meter != nil {
		if counter, merr := s.meter.Counter(MetricStoreFallback, "Counter store fallbacks"); merr == nil {
			counter.Inc(ctx, metrics.L(LabelStore, "local"))
		}
	}

	return s.local.Incr(ctx, key, window)
}

// Close 关闭两侧存储
func (s *fallbackStore) Close() error {
	serr := s.shared.Close()
	lerr := s.local.Close()
	if serr != nil {
		return serr
	}
	return lerr
}
