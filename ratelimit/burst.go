package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/aegis/clog"
)

// BurstConfig 突发检测配置
type BurstConfig struct {
	// Rate 每秒允许的请求数（默认：10）
	Rate float64 `mapstructure:"rate" yaml:"rate" json:"rate"`

	// Burst 令牌桶容量（默认：10）
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// CleanupInterval 清理空闲令牌桶的间隔（默认：1 分钟）
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`

	// IdleTimeout 令牌桶空闲超时时间（默认：5 分钟）
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
}

func (c *BurstConfig) setDefaults() {
	if c.Rate == 0 {
		c.Rate = 10
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// bucketWrapper 包装 rate.Limiter 并记录最后访问时间
type bucketWrapper struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// BurstLimiter 秒级突发检测器
//
// 窗口计数器的分辨率是整个窗口，无法发现"一秒内打满配额"的
// 尖刺流量；突发检测用进程内令牌桶补上这一层。始终按实例
// 本地判定，不经过共享存储：尖刺防护求快不求全局精确。
type BurstLimiter struct {
	cfg     *BurstConfig
	logger  clog.Logger
	buckets sync.Map // map[string]*bucketWrapper
	stopCh  chan struct{}
	once    sync.Once
}

// NewBurstLimiter 创建突发检测器
//
// 参数:
//   - cfg: 配置，nil 时使用缺省值（10 req/s）
//   - opts: 可选参数 (Logger)
func NewBurstLimiter(cfg *BurstConfig, opts ...Option) *BurstLimiter {
	if cfg == nil {
		cfg = &BurstConfig{}
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

	b := &BurstLimiter{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	go b.cleanup()

	logger.Info("burst limiter created",
		clog.Float64("rate", cfg.Rate),
		clog.Int("burst", cfg.Burst))

	return b
}

// Allow 判定指定身份是否在突发配额内
func (b *BurstLimiter) Allow(identity string) bool {
	if identity == "" {
		return true
	}

	w := b.getBucket(identity)

	w.mu.Lock()
	allowed := w.limiter.Allow()
	w.lastSeen = time.Now()
	w.mu.Unlock()

	if !allowed {
		b.logger.Warn("burst detected",
			clog.String("identity", identity),
			clog.Float64("rate", b.cfg.Rate))
	}
	return allowed
}

// Close 停止清理 goroutine
func (b *BurstLimiter) Close() error {
	b.once.Do(func() {
		close(b.stopCh)
	})
	return nil
}

// getBucket 获取或创建指定身份的令牌桶
func (b *BurstLimiter) getBucket(identity string) *bucketWrapper {
	if v, ok := b.buckets.Load(identity); ok {
		return v.(*bucketWrapper)
	}

	w := &bucketWrapper{
		limiter:  rate.NewLimiter(rate.Limit(b.cfg.Rate), b.cfg.Burst),
		lastSeen: time.Now(),
	}
	actual, _ := b.buckets.LoadOrStore(identity, w)
	return actual.(*bucketWrapper)
}

// cleanup 定期清理空闲令牌桶
func (b *BurstLimiter) cleanup() {
	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			count := 0

			b.buckets.Range(func(key, value any) bool {
				w := value.(*bucketWrapper)
				w.mu.Lock()
				idle := now.Sub(w.lastSeen)
				w.mu.Unlock()

				if idle > b.cfg.IdleTimeout {
					b.buckets.Delete(key)
					count++
				}
				return true
			})

			if count > 0 {
				b.logger.Debug("cleaned up idle buckets", clog.Int("count", count))
			}

		case <-b.stopCh:
			return
		}
	}
}
