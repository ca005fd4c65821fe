// Package connector 为 Aegis 治理层提供共享存储的连接管理。
// 当前只包含 Redis 连接器：限流计数器的分布式存储后端。
//
// 基本使用：
//
//	conn, _ := connector.NewRedis(&connector.RedisConfig{
//		Addr: "localhost:6379",
//	}, connector.WithLogger(logger))
//	if err := conn.Connect(ctx); err != nil {
//		// 连接失败：限流器应降级到本地存储
//	}
//	defer conn.Close()
package connector

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connector 连接器通用接口
type Connector interface {
	// Connect 建立连接并验证可达性
	Connect(ctx context.Context) error

	// Close 关闭连接
	Close() error

	// HealthCheck 主动检查连接健康状态
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回缓存的健康状态
	IsHealthy() bool

	// Name 返回连接器名称
	Name() string
}

// RedisConnector Redis 连接器接口
type RedisConnector interface {
	Connector

	// GetClient 返回底层 Redis 客户端
	GetClient() *redis.Client
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name         string        `mapstructure:"name" yaml:"name" json:"name"`
	Addr         string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password     string        `mapstructure:"password" yaml:"password" json:"password"`
	DB           int           `mapstructure:"db" yaml:"db" json:"db"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns" json:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// setDefaults 设置默认值
func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// validate 验证配置有效性
func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return ErrAddrEmpty
	}
	return nil
}
