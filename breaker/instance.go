package breaker

import (
	"sync"
	"time"
)

// outcome 单次调用结果
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeTimeout
	// outcomeAbandoned 调用方取消，结果未知：不计入窗口
	outcomeAbandoned
)

// instance 单个命名熔断器的状态机（非导出）
//
// 所有状态迁移在 mu 下线性化：同一实例上不会有两个调用完成
// 交错地做出迁移决策。事件在解锁后由调用方发出，避免监听器
// 回调造成死锁。
type instance struct {
	mu sync.Mutex

	name   string
	class  Class
	policy Policy

	state  State
	forced bool // 强制状态，自动迁移被抑制

	window   *window
	openedAt time.Time
	probing  bool // 半开探测位是否被占用

	// 生命周期累计计数，独立于滚动窗口
	totalRequests  uint64
	totalSuccesses uint64
	totalFailures  uint64
	totalTimeouts  uint64
	totalRejects   uint64

	now func() time.Time
}

func newInstance(name string, class Class, policy Policy) *instance {
	b := &instance{
		name:   name,
		class:  class,
		policy: policy,
		state:  StateClosed,
		now:    time.Now,
	}
	b.window = newWindow(policy.RollingWindow, policy.RollingBuckets, b.now())
	return b
}

// transition 切换状态并生成事件。必须持有 mu。
func (b *instance) transition(to State, at time.Time, events *[]Event) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	var typ EventType
	switch to {
	case StateOpen:
		typ = EventOpen
		b.openedAt = at
	case StateHalfOpen:
		typ = EventHalfOpen
	case StateClosed:
		typ = EventClose
		b.openedAt = time.Time{}
	}
	*events = append(*events, Event{
		Name: b.name, Class: b.class, Type: typ,
		From: from, To: to, Time: at,
	})
}

// acquire 决定一次调用是否放行
// 返回 isProbe（是否作为半开探测）与拒绝原因。
func (b *instance) acquire() (isProbe bool, events []Event, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.totalRequests++
		return false, nil, nil

	case StateOpen:
		if b.forced || now.Sub(b.openedAt) < b.policy.ResetTimeout {
			b.totalRejects++
			events = append(events, Event{
				Name: b.name, Class: b.class, Type: EventReject,
				From: b.state, To: b.state, Time: now,
			})
			return false, events, ErrOpenState
		}
		// 恢复等待期已过：转入半开，本次调用作为探测
		b.transition(StateHalfOpen, now, &events)
		b.probing = true
		b.totalRequests++
		return true, events, nil

	case StateHalfOpen:
		if b.probing {
			// 单飞语义：探测期间其余调用快速失败，避免踩踏恢复中的依赖
			b.totalRejects++
			events = append(events, Event{
				Name: b.name, Class: b.class, Type: EventReject,
				From: b.state, To: b.state, Time: now,
			})
			return false, events, ErrTooManyProbes
		}
		b.probing = true
		b.totalRequests++
		return true, events, nil
	}

	b.totalRequests++
	return false, nil, nil
}

// record 记录一次已放行调用的完成结果，并推进状态机
func (b *instance) record(isProbe bool, oc outcome) (events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if oc == outcomeAbandoned {
		// 调用方自己放弃了等待，依赖的健康状况无从判断：
		// 不计成功也不计失败，探测位立即让给下一个调用。
		if isProbe {
			b.probing = false
		}
		return nil
	}

	var typ EventType
	switch oc {
	case outcomeSuccess:
		b.totalSuccesses++
		b.window.recordSuccess(now)
		typ = EventSuccess
	case outcomeFailure:
		b.totalFailures++
		b.window.recordFailure(now)
		typ = EventFailure
	case outcomeTimeout:
		b.totalTimeouts++
		b.window.recordTimeout(now)
		typ = EventTimeout
	}
	events = append(events, Event{
		Name: b.name, Class: b.class, Type: typ,
		From: b.state, To: b.state, Time: now,
	})

	if isProbe {
		b.probing = false
		if b.forced {
			return events
		}
		if oc == outcomeSuccess {
			// 探测成功：闭合并清空窗口，旧的失败统计不再影响新一轮判断
			b.window.reset(now)
			b.transition(StateClosed, now, &events)
		} else {
			b.transition(StateOpen, now, &events)
		}
		return events
	}

	if b.state == StateClosed && !b.forced {
		pct, total := b.window.failurePercentage(now)
		if total >= uint64(b.policy.MinimumRequests) && pct >= b.policy.ErrorThresholdPercentage {
			b.transition(StateOpen, now, &events)
		}
	}
	// Open 状态下的迟到完成仍计入窗口：结果不浪费

	return events
}

// reset 清空计数器并强制回到 Closed
func (b *instance) reset() (events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.window.reset(now)
	b.forced = false
	b.probing = false
	b.totalRequests = 0
	b.totalSuccesses = 0
	b.totalFailures = 0
	b.totalTimeouts = 0
	b.totalRejects = 0
	b.transition(StateClosed, now, &events)
	return events
}

// forceOpen 强制固定在 Open 状态
func (b *instance) forceOpen() (events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forced = true
	b.probing = false
	b.transition(StateOpen, b.now(), &events)
	return events
}

// forceClose 强制固定在 Closed 状态
func (b *instance) forceClose() (events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forced = true
	b.probing = false
	b.transition(StateClosed, b.now(), &events)
	return events
}

// currentState 返回当前状态（只读）
func (b *instance) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// snapshot 返回只读快照
func (b *instance) snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Name:      b.name,
		Class:     b.class,
		State:     b.state.String(),
		Requests:  b.totalRequests,
		Successes: b.totalSuccesses,
		Failures:  b.totalFailures,
		Timeouts:  b.totalTimeouts,
		Rejects:   b.totalRejects,
		OpenedAt:  b.openedAt,
		Forced:    b.forced,
	}
	completed := b.totalSuccesses + b.totalFailures + b.totalTimeouts
	if completed > 0 {
		s.SuccessRate = float64(b.totalSuccesses) / float64(completed) * 100
		s.FailureRate = float64(b.totalFailures+b.totalTimeouts) / float64(completed) * 100
	}
	return s
}
