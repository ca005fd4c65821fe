package breaker

import "time"

// bucket 滚动窗口中的单个时间桶
type bucket struct {
	successes uint64
	failures  uint64
	timeouts  uint64
}

// window 时间分桶的滚动统计窗口
//
// 总时长 span 均分为 len(buckets) 个桶，随时间推进循环复用。
// 非并发安全，调用方（instance）持锁访问。
type window struct {
	buckets   []bucket
	span      time.Duration
	bucketDur time.Duration
	head      int       // 当前写入桶下标
	headTime  time.Time // 当前桶的起始时间
}

func newWindow(span time.Duration, count int, now time.Time) *window {
	return &window{
		buckets:   make([]bucket, count),
		span:      span,
		bucketDur: span / time.Duration(count),
		headTime:  now,
	}
}

// rotate 按当前时间推进桶指针，清空过期的桶
func (w *window) rotate(now time.Time) {
	elapsed := now.Sub(w.headTime)
	if elapsed < w.bucketDur {
		return
	}

	steps := int(elapsed / w.bucketDur)
	if steps >= len(w.buckets) {
		// 整个窗口已过期
		for i := range w.buckets {
			w.buckets[i] = bucket{}
		}
		w.head = 0
		w.headTime = now
		return
	}

	for i := 0; i < steps; i++ {
		w.head = (w.head + 1) % len(w.buckets)
		w.buckets[w.head] = bucket{}
	}
	w.headTime = w.headTime.Add(time.Duration(steps) * w.bucketDur)
}

func (w *window) recordSuccess(now time.Time) {
	w.rotate(now)
	w.buckets[w.head].successes++
}

func (w *window) recordFailure(now time.Time) {
	w.rotate(now)
	w.buckets[w.head].failures++
}

func (w *window) recordTimeout(now time.Time) {
	w.rotate(now)
	w.buckets[w.head].timeouts++
}

// counts 返回窗口内的成功 / 失败 / 超时总数
func (w *window) counts(now time.Time) (successes, failures, timeouts uint64) {
	w.rotate(now)
	for _, b := range w.buckets {
		successes += b.successes
		failures += b.failures
		timeouts += b.timeouts
	}
	return
}

// failurePercentage 返回窗口内失败率（含超时），0-100
func (w *window) failurePercentage(now time.Time) (percentage float64, total uint64) {
	s, f, t := w.counts(now)
	total = s + f + t
	if total == 0 {
		return 0, 0
	}
	return float64(f+t) / float64(total) * 100, total
}

// reset 清空窗口
func (w *window) reset(now time.Time) {
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
	w.head = 0
	w.headTime = now
}
