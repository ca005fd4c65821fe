package ratelimit

// Metrics 指标常量定义
const (
	// MetricAllowed 放行请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 拒绝请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricSlowdown 渐进减速注入的延迟 (Histogram)
	MetricSlowdown = "ratelimit_slowdown_seconds"

	// MetricStoreFallback 共享存储降级次数 (Counter)
	MetricStoreFallback = "ratelimit_store_fallback_total"

	// LabelPolicy 策略名标签
	LabelPolicy = "policy"

	// LabelStore 存储类型标签 (redis/local)
	LabelStore = "store"
)
