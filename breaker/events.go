package breaker

import "time"

// EventType 熔断器事件类型
type EventType string

const (
	// EventSuccess 一次调用成功
	EventSuccess EventType = "success"
	// EventFailure 一次调用失败
	EventFailure EventType = "failure"
	// EventTimeout 一次调用超时
	EventTimeout EventType = "timeout"
	// EventReject 一次调用被快速拒绝（未执行）
	EventReject EventType = "reject"
	// EventOpen 状态切换为 Open
	EventOpen EventType = "open"
	// EventHalfOpen 状态切换为 HalfOpen
	EventHalfOpen EventType = "half_open"
	// EventClose 状态切换为 Closed
	EventClose EventType = "close"
)

// Event 熔断器事件
// 状态切换事件携带 From/To；调用事件只携带当前状态。
type Event struct {
	Name  string
	Class Class
	Type  EventType
	From  State
	To    State
	Time  time.Time
}

// Listener 事件监听器
// 在调用完成路径上同步执行，必须保持轻量，不得阻塞。
type Listener func(Event)
