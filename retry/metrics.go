package retry

// Metrics 指标常量定义
const (
	// MetricAttemptsTotal 尝试总数 (Counter)
	MetricAttemptsTotal = "retry_attempts_total"

	// MetricExhaustedTotal 预算耗尽次数 (Counter)
	MetricExhaustedTotal = "retry_exhausted_total"

	// MetricBackoffDuration 退避延迟 (Histogram)
	MetricBackoffDuration = "retry_backoff_duration_seconds"

	// LabelOperation 操作名标签
	LabelOperation = "operation"

	// LabelClass 操作类别标签
	LabelClass = "class"

	// LabelResult 结果标签 (success/retryable/terminal)
	LabelResult = "result"
)
