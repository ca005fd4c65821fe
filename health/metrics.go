package health

// MetricAdminActions 运维操作总数 (Counter)
const MetricAdminActions = "health_admin_actions_total"

// 指标标签名
const (
	LabelAction  = "action"
	LabelBreaker = "breaker"
)
