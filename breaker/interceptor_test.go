package breaker

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// fixedKey 返回固定实例名的 KeyFunc，避免测试依赖 cc.Target()
func fixedKey(name string) KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return name
	}
}

// okInvoker 成功的 invoker
func okInvoker(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
	return nil
}

// newLazyConn 创建一个不实际建连的客户端连接，供 KeyFunc 测试使用
func newLazyConn(t *testing.T, target string) *grpc.ClientConn {
	t.Helper()
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient should not return error, got: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

// TestInterceptorSuccess 测试拦截器透传成功调用并记录结果
func TestInterceptorSuccess(t *testing.T) {
	reg := newTestRegistry(t, "PaymentRPC")
	interceptor := reg.UnaryClientInterceptor(WithKeyFunc(fixedKey("PaymentRPC")))

	err := interceptor(context.Background(), "/pay.Payment/Charge", "req", "reply", nil, okInvoker)
	if err != nil {
		t.Fatalf("interceptor should not return error, got: %v", err)
	}

	snap := reg.Snapshot()["PaymentRPC"]
	if snap.Successes != 1 {
		t.Errorf("expected 1 recorded success, got: %d", snap.Successes)
	}
}

// TestInterceptorErrorPassthrough 测试 invoker 错误原样透传并计入失败
func TestInterceptorErrorPassthrough(t *testing.T) {
	reg := newTestRegistry(t, "PaymentRPC")
	interceptor := reg.UnaryClientInterceptor(WithKeyFunc(fixedKey("PaymentRPC")))

	callErr := status.Error(codes.Unavailable, "payment backend down")
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return callErr
	}

	err := interceptor(context.Background(), "/pay.Payment/Charge", "req", "reply", nil, invoker)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected codes.Unavailable passthrough, got: %v", err)
	}

	snap := reg.Snapshot()["PaymentRPC"]
	if snap.Failures != 1 {
		t.Errorf("expected 1 recorded failure, got: %d", snap.Failures)
	}
}

// TestInterceptorOpenFastFail 测试熔断打开时快速失败且不调用 invoker
func TestInterceptorOpenFastFail(t *testing.T) {
	reg := newTestRegistry(t, "PaymentRPC")
	reg.ForceOpen("PaymentRPC")

	interceptor := reg.UnaryClientInterceptor(WithKeyFunc(fixedKey("PaymentRPC")))

	invoked := 0
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		invoked++
		return nil
	}

	err := interceptor(context.Background(), "/pay.Payment/Charge", "req", "reply", nil, invoker)
	if !errors.Is(err, ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got: %v", err)
	}
	var fb *FallbackError
	if !errors.As(err, &fb) {
		t.Fatal("rejection should be a *FallbackError")
	}
	if fb.Name != "PaymentRPC" {
		t.Errorf("expected breaker name PaymentRPC, got: %s", fb.Name)
	}
	if invoked != 0 {
		t.Errorf("invoker should not run while breaker is open, got %d calls", invoked)
	}
}

// TestInterceptorMethodLevelKey 测试方法级 Key 按方法创建独立实例
func TestInterceptorMethodLevelKey(t *testing.T) {
	reg := newTestRegistry(t)
	interceptor := reg.UnaryClientInterceptor(WithKeyFunc(MethodLevelKey()))

	methods := []string{"/pay.Payment/Charge", "/pay.Payment/Refund"}
	for _, method := range methods {
		if err := interceptor(context.Background(), method, "req", "reply", nil, okInvoker); err != nil {
			t.Fatalf("interceptor should not return error for %s, got: %v", method, err)
		}
	}

	snaps := reg.Snapshot()
	for _, method := range methods {
		if _, ok := snaps[method]; !ok {
			t.Errorf("expected independent breaker for %s, snapshot: %v", method, snaps)
		}
	}
}

// TestInterceptorClass 测试 WithClass 指定业务维度
func TestInterceptorClass(t *testing.T) {
	reg := newTestRegistry(t)
	interceptor := reg.UnaryClientInterceptor(
		WithKeyFunc(fixedKey("OrdersDB")),
		WithClass(ClassDatabase),
	)

	if err := interceptor(context.Background(), "/db.Orders/Get", "req", "reply", nil, okInvoker); err != nil {
		t.Fatalf("interceptor should not return error, got: %v", err)
	}
	if got := reg.Snapshot()["OrdersDB"].Class; got != ClassDatabase {
		t.Errorf("expected ClassDatabase, got: %v", got)
	}
}

// TestServiceLevelKey 测试服务级 Key 使用连接目标
func TestServiceLevelKey(t *testing.T) {
	cc := newLazyConn(t, "passthrough:///payment-service")

	got := ServiceLevelKey()(context.Background(), "/pay.Payment/Charge", cc)
	if got != cc.Target() {
		t.Errorf("expected target %q, got: %q", cc.Target(), got)
	}
}

// TestBackendLevelKey 测试后端级 Key 优先使用 Peer 地址
func TestBackendLevelKey(t *testing.T) {
	cc := newLazyConn(t, "passthrough:///payment-service")
	kf := BackendLevelKey()

	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 9001}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: addr})
	if got := kf(ctx, "/pay.Payment/Charge", cc); got != addr.String() {
		t.Errorf("expected peer address %q, got: %q", addr.String(), got)
	}

	// 无 Peer 信息时回退到连接目标
	if got := kf(context.Background(), "/pay.Payment/Charge", cc); got != cc.Target() {
		t.Errorf("expected fallback to target %q, got: %q", cc.Target(), got)
	}
}

// TestCompositeKey 测试组合 Key 以 @ 连接
func TestCompositeKey(t *testing.T) {
	cc := newLazyConn(t, "passthrough:///payment-service")
	kf := CompositeKey(ServiceLevelKey(), MethodLevelKey())

	want := cc.Target() + "@/pay.Payment/Charge"
	if got := kf(context.Background(), "/pay.Payment/Charge", cc); got != want {
		t.Errorf("expected %q, got: %q", want, got)
	}
}
