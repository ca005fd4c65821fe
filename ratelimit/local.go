package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/aegis/clog"
)

// LocalStoreConfig 本地计数存储配置
type LocalStoreConfig struct {
	// CleanupInterval 清理过期计数的间隔（默认：1 分钟）
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`
}

func (c *LocalStoreConfig) setDefaults() {
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
}

// localCounter 单个键的窗口计数
type localCounter struct {
	count     int64
	expiresAt time.Time
}

// localStore 进程内计数存储（非导出）
//
// 多实例部署时每个实例独立计数，限流精度退化为单实例近似。
// 作为共享存储不可用时的降级路径，以及单实例部署的默认选择。
type localStore struct {
	mu       sync.Mutex
	counters map[string]*localCounter
	logger   clog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLocalStore 创建本地计数存储
//
// 参数:
//   - cfg: 配置，nil 时使用缺省值
//   - opts: 可选参数 (Logger)
func NewLocalStore(cfg *LocalStoreConfig, opts ...Option) (CounterStore, error) {
	if cfg == nil {
		cfg = &LocalStoreConfig{}
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

	s := &localStore{
		counters: make(map[string]*localCounter),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go s.cleanup(cfg.CleanupInterval)

	logger.Info("local counter store created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval))

	return s, nil
}

// Incr 自增窗口计数，读取时检查过期
func (s *localStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &localCounter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	return c.count, c.expiresAt.Sub(now), nil
}

// cleanup 定期清理过期计数，避免身份基数无界增长
func (s *localStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			count := 0

			s.mu.Lock()
			for key, c := range s.counters {
				if now.After(c.expiresAt) {
					delete(s.counters, key)
					count++
				}
			}
			s.mu.Unlock()

			if count > 0 {
				s.logger.Debug("cleaned up expired counters", clog.Int("count", count))
			}

		case <-s.stopCh:
			return
		}
	}
}

// Close 停止清理 goroutine
func (s *localStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}
