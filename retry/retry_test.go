package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/xerrors"
)

// fastPolicy 返回退避极短的测试策略
func fastPolicy(retries int) Policy {
	return Policy{
		Retries:    retries,
		MinTimeout: time.Millisecond,
		MaxTimeout: 5 * time.Millisecond,
		Factor:     2,
	}
}

func newTestRetryer(t *testing.T, opts ...Option) Retryer {
	t.Helper()
	r, err := New(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New should not return error, got: %v", err)
	}
	return r
}

func connReset() error {
	return fmt.Errorf("read tcp 10.0.0.1:5432: %w", syscall.ECONNRESET)
}

// TestNewNilConfig 测试 nil 配置
func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrConfigNil) {
		t.Fatalf("New with nil config should return ErrConfigNil, got: %v", err)
	}
}

// TestDoEmptyName 测试空操作名
func TestDoEmptyName(t *testing.T) {
	r := newTestRetryer(t)

	err := r.Do(context.Background(), "", breaker.ClassDatabase,
		func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrNameEmpty) {
		t.Fatalf("Do with empty name should return ErrNameEmpty, got: %v", err)
	}
}

// TestRetryableRecovers 测试瞬时错误重试后恢复
// 场景：数据库操作连续三次 ECONNRESET，第 4 次成功
func TestRetryableRecovers(t *testing.T) {
	r := newTestRetryer(t)

	var calls int
	result, err := r.DoValue(context.Background(), "SaveOrder", breaker.ClassDatabase,
		func(ctx context.Context) (any, error) {
			calls++
			if calls <= 3 {
				return nil, connReset()
			}
			return "saved", nil
		},
		WithPolicy(fastPolicy(3)))
	if err != nil {
		t.Fatalf("DoValue should recover, got: %v", err)
	}
	if result != "saved" {
		t.Errorf("Expected result 'saved', got: %v", result)
	}
	if calls != 4 {
		t.Errorf("Expected 4 attempts, got: %d", calls)
	}
}

// TestAttemptBound 测试尝试次数不超过 retries+1
func TestAttemptBound(t *testing.T) {
	r := newTestRetryer(t)

	var calls int
	underlying := connReset()
	err := r.Do(context.Background(), "SaveOrder", breaker.ClassDatabase,
		func(ctx context.Context) error {
			calls++
			return underlying
		},
		WithPolicy(fastPolicy(3)))

	if calls != 4 {
		t.Fatalf("Expected exactly retries+1 = 4 attempts, got: %d", calls)
	}
	// 预算耗尽后重抛最后一次的底层错误
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("Expected last underlying error, got: %v", err)
	}
}

// TestTerminalShortCircuit 测试终态错误只尝试一次并返回原始错误
func TestTerminalShortCircuit(t *testing.T) {
	r := newTestRetryer(t)

	validationErr := xerrors.WithCode(errors.New("price must be positive"), "VALIDATION")
	var calls int
	err := r.Do(context.Background(), "CreateProduct", breaker.ClassDatabase,
		func(ctx context.Context) error {
			calls++
			return validationErr
		},
		WithPolicy(fastPolicy(3)))

	if calls != 1 {
		t.Fatalf("terminal error should abort after 1 attempt, got: %d", calls)
	}
	if !errors.Is(err, validationErr) {
		t.Fatalf("Expected original validation error, got: %v", err)
	}
}

// TestDatabaseConstraintNotRetried 测试数据库约束冲突不重试
func TestDatabaseConstraintNotRetried(t *testing.T) {
	r := newTestRetryer(t)

	var calls int
	r.Do(context.Background(), "CreateUser", breaker.ClassDatabase,
		func(ctx context.Context) error {
			calls++
			return errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`)
		},
		WithPolicy(fastPolicy(3)))

	if calls != 1 {
		t.Fatalf("constraint violation should not be retried, got %d attempts", calls)
	}
}

// TestUnclassifiedIsTerminal 测试未注册的错误默认终态
func TestUnclassifiedIsTerminal(t *testing.T) {
	r := newTestRetryer(t)

	var calls int
	r.Do(context.Background(), "Op", breaker.ClassExternalAPI,
		func(ctx context.Context) error {
			calls++
			return errors.New("something nobody registered")
		},
		WithPolicy(fastPolicy(5)))

	if calls != 1 {
		t.Fatalf("unclassified error should not be retried, got %d attempts", calls)
	}
}

// TestCustomRegistration 测试显式注册新错误源
func TestCustomRegistration(t *testing.T) {
	r := newTestRetryer(t)

	errFlaky := errors.New("flaky backend hiccup")
	r.Classifier().Register("flaky_backend", CategoryRetryable, func(err error) bool {
		return errors.Is(err, errFlaky)
	})

	var calls int
	result, err := r.DoValue(context.Background(), "Op", breaker.ClassExternalAPI,
		func(ctx context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, errFlaky
			}
			return "ok", nil
		},
		WithPolicy(fastPolicy(2)))
	if err != nil || result != "ok" {
		t.Fatalf("registered retryable error should be retried, got: %v / %v", result, err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts, got: %d", calls)
	}
}

// TestHTTPStatusClassification 测试 HTTP 状态码分类
func TestHTTPStatusClassification(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		status int
		want   Category
	}{
		{500, CategoryRetryable},
		{503, CategoryRetryable},
		{400, CategoryTerminal},
		{404, CategoryTerminal},
	}
	for _, tc := range cases {
		got, _ := c.Classify(&HTTPStatusError{StatusCode: tc.status}, breaker.ClassExternalAPI)
		if got != tc.want {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, got)
		}
	}
}

// TestClassifyTable 测试缺省分类表
func TestClassifyTable(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		name  string
		err   error
		class breaker.Class
		want  Category
	}{
		{"conn_reset", connReset(), breaker.ClassDatabase, CategoryRetryable},
		{"conn_refused", syscall.ECONNREFUSED, breaker.ClassExternalAPI, CategoryRetryable},
		{"dns", &net.DNSError{Name: "api.example.com", IsNotFound: true}, breaker.ClassExternalAPI, CategoryRetryable},
		{"deadline", context.DeadlineExceeded, breaker.ClassDatabase, CategoryRetryable},
		{"breaker_timeout", breaker.ErrTimeout, breaker.ClassDatabase, CategoryRetryable},
		{"circuit_open", breaker.ErrOpenState, breaker.ClassDatabase, CategoryTerminal},
		{"forbidden", xerrors.WithCode(errors.New("no access"), "FORBIDDEN"), breaker.ClassExternalAPI, CategoryTerminal},
		{"conflict", xerrors.WithCode(errors.New("version mismatch"), "CONFLICT"), breaker.ClassDatabase, CategoryTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rule := c.Classify(tc.err, tc.class)
			if got != tc.want {
				t.Errorf("Expected %v, got %v (rule=%s)", tc.want, got, rule)
			}
		})
	}
}

// TestBackoffBounds 测试退避延迟的指数增长与 ±25% 抖动边界
func TestBackoffBounds(t *testing.T) {
	p := Policy{
		Retries:    5,
		MinTimeout: time.Second,
		MaxTimeout: 10 * time.Second,
		Factor:     2,
	}
	bo := p.newBackOff()

	nominal := float64(p.MinTimeout)
	for i := 0; i < 5; i++ {
		d := float64(bo.NextBackOff())
		lo, hi := nominal*0.75, nominal*1.25
		if d < lo || d > hi {
			t.Errorf("delay %d out of jitter bounds: got %v, want [%v, %v]",
				i+1, time.Duration(d), time.Duration(lo), time.Duration(hi))
		}
		nominal *= p.Factor
		if max := float64(p.MaxTimeout); nominal > max {
			nominal = max
		}
	}
}

// TestWithBreakerOpenNotRetried 测试熔断拒绝不消耗重试预算
func TestWithBreakerOpenNotRetried(t *testing.T) {
	reg, _ := breaker.New(breaker.DefaultConfig())
	reg.ForceOpen("PaymentAPI")

	r := newTestRetryer(t, WithBreaker(reg))

	var calls int
	err := r.Do(context.Background(), "PaymentAPI", breaker.ClassExternalAPI,
		func(ctx context.Context) error {
			calls++
			return nil
		},
		WithPolicy(fastPolicy(5)))

	if calls != 0 {
		t.Fatalf("operation should not run through open breaker, got %d calls", calls)
	}
	if !errors.Is(err, breaker.ErrOpenState) {
		t.Fatalf("Expected ErrOpenState, got: %v", err)
	}
}

// TestWithBreakerComposition 测试重试包裹熔断器的组合路径
func TestWithBreakerComposition(t *testing.T) {
	reg, _ := breaker.New(breaker.DefaultConfig())
	r := newTestRetryer(t, WithBreaker(reg))

	var calls int
	result, err := r.DoValue(context.Background(), "InventoryAPI", breaker.ClassExternalAPI,
		func(ctx context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, connReset()
			}
			return 42, nil
		},
		WithPolicy(fastPolicy(2)))
	if err != nil || result != 42 {
		t.Fatalf("composition should recover, got: %v / %v", result, err)
	}

	snap := reg.Snapshot()["InventoryAPI"]
	if snap.Requests != 2 {
		t.Errorf("breaker should see each attempt, got %d requests", snap.Requests)
	}
}

// TestContextCancelStopsRetry 测试 ctx 取消终止重试
func TestContextCancelStopsRetry(t *testing.T) {
	r := newTestRetryer(t)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := r.Do(ctx, "Op", breaker.ClassExternalAPI,
		func(ctx context.Context) error {
			calls++
			cancel() // 失败后退避期间 ctx 已取消
			return connReset()
		},
		WithPolicy(Policy{Retries: 5, MinTimeout: time.Minute, MaxTimeout: time.Hour, Factor: 2}))

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got: %d", calls)
	}
}

// TestNotifyObservability 测试每次失败尝试可观测
func TestNotifyObservability(t *testing.T) {
	r := newTestRetryer(t)

	var attempts []Attempt
	r.Do(context.Background(), "SaveOrder", breaker.ClassDatabase,
		func(ctx context.Context) error {
			return connReset()
		},
		WithPolicy(fastPolicy(2)),
		WithNotify(func(a Attempt) {
			attempts = append(attempts, a)
		}))

	if len(attempts) != 3 {
		t.Fatalf("Expected 3 observed attempts, got: %d", len(attempts))
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d: expected number %d, got %d", i, i+1, a.Number)
		}
		if a.RetriesLeft != 2-i {
			t.Errorf("attempt %d: expected retries_left %d, got %d", i, 2-i, a.RetriesLeft)
		}
		if a.Category != CategoryRetryable {
			t.Errorf("attempt %d: expected retryable, got %v", i, a.Category)
		}
		if a.Operation != "SaveOrder" {
			t.Errorf("attempt %d: unexpected operation %q", i, a.Operation)
		}
	}
	// 最后一次失败没有后续延迟
	if attempts[2].Delay != 0 {
		t.Errorf("final attempt should have zero delay, got: %v", attempts[2].Delay)
	}
}
