package ratelimit

import (
	"context"
	"time"
)

// CounterStore 窗口计数存储抽象
//
// 实现必须保证 Incr 的原子性：多实例并发自增同一个键时，
// 每个实例观察到的计数严格递增且不丢失。
type CounterStore interface {
	// Incr 原子自增指定键的窗口计数
	// 键首次出现时以 window 设置过期；返回自增后的计数与窗口剩余时长
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Close 释放存储资源
	Close() error
}
