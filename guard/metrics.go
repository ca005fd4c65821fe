package guard

// Metrics 指标常量定义
const (
	// MetricRejectsTotal 防护拒绝的请求数 (Counter)
	MetricRejectsTotal = "guard_rejects_total"

	// MetricDegradedMode 当前降级模式 (Gauge, 0=normal 1=non_critical 2=read_only 3=cache_only)
	MetricDegradedMode = "guard_degradation_mode"

	// LabelGuard 防护名标签 (size/timeout/validation/degradation)
	LabelGuard = "guard"

	// LabelReason 拒绝原因标签
	LabelReason = "reason"
)
