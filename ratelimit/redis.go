package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/xerrors"
)

// counterScript 固定窗口计数的 Lua 脚本
const counterScript = `
-- 固定窗口计数器 (Fixed Window Counter)
-- KEYS[1]: 计数键（策略名 + 身份）
-- ARGV[1]: 窗口时长（毫秒）
--
-- 自增与设置过期必须在一次原子操作内完成，
-- 否则进程在两步之间崩溃会留下永不过期的计数键。

local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

// RedisStoreConfig Redis 计数存储配置
type RedisStoreConfig struct {
	// OpTimeout 单次存储往返的超时上限（默认：200ms）
	// 限流检查在请求热路径上，共享存储变慢不能拖垮事件循环
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout" json:"op_timeout"`
}

func (c *RedisStoreConfig) setDefaults() {
	if c.OpTimeout == 0 {
		c.OpTimeout = 200 * time.Millisecond
	}
}

// redisStore 基于 Redis 的共享计数存储（非导出）
type redisStore struct {
	client    *redis.Client
	script    *redis.Script
	opTimeout time.Duration
	logger    clog.Logger
}

// NewRedisStore 创建 Redis 计数存储
//
// 参数:
//   - redisConn: Redis 连接器
//   - cfg: 配置，nil 时使用缺省值
//   - opts: 可选参数 (Logger)
func NewRedisStore(redisConn connector.RedisConnector, cfg *RedisStoreConfig, opts ...Option) (CounterStore, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &RedisStoreConfig{}
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

	logger.Info("redis counter store created",
		clog.Duration("op_timeout", cfg.OpTimeout))

	return &redisStore{
		client:    redisConn.GetClient(),
		script:    redis.NewScript(counterScript),
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}, nil
}

// Incr 原子自增窗口计数
func (s *redisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	result, err := s.script.Run(ctx, s.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, xerrors.Wrap(err, "ratelimit: run counter script")
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, xerrors.New("ratelimit: invalid counter script result")
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, xerrors.New("ratelimit: invalid count value")
	}
	ttlMillis, ok := values[1].(int64)
	if !ok || ttlMillis < 0 {
		ttlMillis = window.Milliseconds()
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

// Close 释放资源（Redis 连接由 Connector 管理）
func (s *redisStore) Close() error {
	return nil
}
