package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/aegis/metrics"
)

func newTestLimiter(t *testing.T) Limiter {
	t.Helper()

	store, err := NewLocalStore(nil)
	if err != nil {
		t.Fatalf("NewLocalStore should not return error, got: %v", err)
	}
	l, err := New(nil, store)
	if err != nil {
		t.Fatalf("New should not return error, got: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// TestNewNilStore 测试 nil 存储
func TestNewNilStore(t *testing.T) {
	_, err := New(nil, nil)
	if !errors.Is(err, ErrStoreNil) {
		t.Fatalf("New with nil store should return ErrStoreNil, got: %v", err)
	}
}

// TestCheckEmptyIdentity 测试空身份
func TestCheckEmptyIdentity(t *testing.T) {
	l := newTestLimiter(t)

	_, err := l.Check(context.Background(), PolicyAPI(), "")
	if !errors.Is(err, ErrIdentityEmpty) {
		t.Fatalf("Check with empty identity should return ErrIdentityEmpty, got: %v", err)
	}
}

// TestCheckInvalidPolicy 测试无效策略
func TestCheckInvalidPolicy(t *testing.T) {
	l := newTestLimiter(t)

	_, err := l.Check(context.Background(), Policy{Name: "bad", Max: 0, Window: time.Minute}, "user:1")
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("Check with invalid policy should return ErrInvalidPolicy, got: %v", err)
	}
}

// TestAcceptThenReject 测试接受即计数：max=5 时第 6 个请求被拒绝
func TestAcceptThenReject(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Name: "checkout", Max: 5, Window: time.Minute}

	for i := 1; i <= 5; i++ {
		result, err := l.Check(ctx, policy, "user:42")
		if err != nil {
			t.Fatalf("Check %d should not return error, got: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d of 5 should be allowed", i)
		}
		if result.Remaining != 5-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 5-i, result.Remaining)
		}
	}

	result, err := l.Check(ctx, policy, "user:42")
	if err != nil {
		t.Fatalf("Check should not return error on rejection, got: %v", err)
	}
	if result.Allowed {
		t.Fatal("6th request of max=5 should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("Expected remaining 0, got: %d", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("rejection should carry positive RetryAfter, got: %v", result.RetryAfter)
	}
	if result.ResetAt.Before(time.Now()) {
		t.Errorf("ResetAt should be in the future, got: %v", result.ResetAt)
	}
	if time.Until(result.ResetAt) > time.Minute {
		t.Errorf("ResetAt should fall within the window, got: %v", result.ResetAt)
	}
}

// TestWindowRollover 测试窗口过期后配额重置
func TestWindowRollover(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Name: "tiny", Max: 2, Window: 50 * time.Millisecond}

	l.Check(ctx, policy, "user:1")
	l.Check(ctx, policy, "user:1")
	if result, _ := l.Check(ctx, policy, "user:1"); result.Allowed {
		t.Fatal("3rd request should be rejected")
	}

	time.Sleep(60 * time.Millisecond)

	if result, _ := l.Check(ctx, policy, "user:1"); !result.Allowed {
		t.Fatal("request after window rollover should be allowed")
	}
}

// TestIdentityIsolation 测试不同身份独立计数
func TestIdentityIsolation(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Name: "iso", Max: 1, Window: time.Minute}

	l.Check(ctx, policy, "user:a")
	if result, _ := l.Check(ctx, policy, "user:a"); result.Allowed {
		t.Fatal("user:a second request should be rejected")
	}
	if result, _ := l.Check(ctx, policy, "user:b"); !result.Allowed {
		t.Fatal("user:b should have an independent quota")
	}
}

// TestProgressiveSlowdown 测试渐进减速
func TestProgressiveSlowdown(t *testing.T) {
	store, _ := NewLocalStore(nil)
	l, _ := New(&Config{SlowdownMaxDelay: time.Second}, store)
	defer l.Close()

	ctx := context.Background()
	policy := Policy{Name: "slow", Max: 10, Window: time.Minute, SlowdownThreshold: 0.5}

	var prev time.Duration
	for i := 1; i <= 10; i++ {
		result, err := l.Check(ctx, policy, "user:1")
		if err != nil || !result.Allowed {
			t.Fatalf("request %d should be allowed, got: %+v / %v", i, result, err)
		}

		usage := float64(i) / 10
		if usage <= 0.5 {
			if result.Delay != 0 {
				t.Errorf("request %d below threshold should have no delay, got: %v", i, result.Delay)
			}
			continue
		}
		if result.Delay <= 0 {
			t.Errorf("request %d above threshold should have a delay", i)
		}
		if result.Delay < prev {
			t.Errorf("delay should be non-decreasing, got %v after %v", result.Delay, prev)
		}
		if result.Delay > time.Second {
			t.Errorf("delay should be capped at SlowdownMaxDelay, got: %v", result.Delay)
		}
		prev = result.Delay
	}
}

// TestAllowTypedError 测试 Allow 返回带元数据的限流错误
func TestAllowTypedError(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Name: "auth", Max: 1, Window: time.Minute}

	if err := l.Allow(ctx, policy, "ip:10.0.0.1"); err != nil {
		t.Fatalf("first request should pass, got: %v", err)
	}

	err := l.Allow(ctx, policy, "ip:10.0.0.1")
	var limited *LimitExceededError
	if !errors.As(err, &limited) {
		t.Fatalf("Expected LimitExceededError, got: %v", err)
	}
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Error("LimitExceededError should unwrap to ErrRateLimitExceeded")
	}
	if limited.Policy != "auth" || limited.Identity != "ip:10.0.0.1" {
		t.Errorf("unexpected error metadata: %+v", limited)
	}
	if limited.RetryAfter <= 0 {
		t.Errorf("Expected positive RetryAfter, got: %v", limited.RetryAfter)
	}
}

// TestIdentityPrecedence 测试认证身份优先于 IP
func TestIdentityPrecedence(t *testing.T) {
	if got := Identity("42", "10.0.0.1"); got != "user:42" {
		t.Errorf("Expected user:42, got: %s", got)
	}
	if got := Identity("", "10.0.0.1"); got != "ip:10.0.0.1" {
		t.Errorf("Expected ip:10.0.0.1, got: %s", got)
	}
}

// captureMeter 记录计数调用的测试 Meter
type captureMeter struct {
	mu     sync.Mutex
	incs   map[string]int
	labels map[string][]metrics.Label
}

func newCaptureMeter() *captureMeter {
	return &captureMeter{
		incs:   make(map[string]int),
		labels: make(map[string][]metrics.Label),
	}
}

func (m *captureMeter) Counter(name, _ string, _ ...metrics.MetricOption) (metrics.Counter, error) {
	return &captureCounter{m: m, name: name}, nil
}

func (m *captureMeter) Gauge(string, string, ...metrics.MetricOption) (metrics.Gauge, error) {
	return captureGauge{}, nil
}

func (m *captureMeter) Histogram(string, string, ...metrics.MetricOption) (metrics.Histogram, error) {
	return captureHistogram{}, nil
}

func (m *captureMeter) Shutdown(context.Context) error { return nil }

type captureCounter struct {
	m    *captureMeter
	name string
}

func (c *captureCounter) Inc(_ context.Context, labels ...metrics.Label) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.incs[c.name]++
	c.m.labels[c.name] = labels
}

func (c *captureCounter) Add(ctx context.Context, _ float64, labels ...metrics.Label) {
	c.Inc(ctx, labels...)
}

type captureGauge struct{}

func (captureGauge) Set(context.Context, float64, ...metrics.Label) {}

type captureHistogram struct{}

func (captureHistogram) Record(context.Context, float64, ...metrics.Label) {}

// failingStore 总是出错的计数存储，模拟共享存储不可用
type failingStore struct{}

func (f *failingStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("dial tcp 10.0.0.9:6379: connection refused")
}

func (f *failingStore) Close() error { return nil }

// TestFallbackStore 测试共享存储故障时降级到本地计数
func TestFallbackStore(t *testing.T) {
	meter := newCaptureMeter()
	local, _ := NewLocalStore(nil)
	store := NewFallbackStore(&failingStore{}, local, WithMeter(meter))
	defer store.Close()

	l, _ := New(nil, store)
	ctx := context.Background()
	policy := Policy{Name: "fb", Max: 2, Window: time.Minute}

	// 共享存储不可用，但限流仍然生效（本地近似）
	for i := 1; i <= 2; i++ {
		result, err := l.Check(ctx, policy, "user:1")
		if err != nil || !result.Allowed {
			t.Fatalf("request %d should be served by local store, got: %+v / %v", i, result, err)
		}
	}
	if result, _ := l.Check(ctx, policy, "user:1"); result.Allowed {
		t.Fatal("local approximation should still enforce the limit")
	}

	// 每次降级都计数，并标注实际服务的存储
	if got := meter.incs[MetricStoreFallback]; got != 3 {
		t.Errorf("expected 3 fallback increments, got: %d", got)
	}
	labels := meter.labels[MetricStoreFallback]
	if len(labels) != 1 || labels[0].Key != LabelStore || labels[0].Value != "local" {
		t.Errorf("fallback counter should carry store label, got: %+v", labels)
	}
}

// TestBurstLimiter 测试秒级突发检测
func TestBurstLimiter(t *testing.T) {
	b := NewBurstLimiter(&BurstConfig{Rate: 10, Burst: 10})
	defer b.Close()

	allowed := 0
	for i := 0; i < 15; i++ {
		if b.Allow("user:1") {
			allowed++
		}
	}
	if allowed != 10 {
		t.Errorf("Expected 10 requests within burst capacity, got: %d", allowed)
	}

	// 不同身份独立令牌桶
	if !b.Allow("user:2") {
		t.Error("another identity should have its own bucket")
	}
}

// TestLocalStoreTTL 测试本地存储返回的窗口剩余时长
func TestLocalStoreTTL(t *testing.T) {
	store, _ := NewLocalStore(nil)
	defer store.Close()

	_, ttl, err := store.Incr(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("Incr should not return error, got: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected ttl in (0, 1m], got: %v", ttl)
	}

	count, _, _ := store.Incr(context.Background(), "k", time.Minute)
	if count != 2 {
		t.Errorf("Expected count 2, got: %d", count)
	}
}
