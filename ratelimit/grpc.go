package ratelimit

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GRPCKeyFunc 从 gRPC 调用上下文中提取限流身份
type GRPCKeyFunc func(ctx context.Context, fullMethod string) string

// PeerIdentity 按对端地址限流
func PeerIdentity() GRPCKeyFunc {
	return func(ctx context.Context, fullMethod string) string {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			return Identity("", p.Addr.String())
		}
		return ""
	}
}

// MethodIdentity 按方法限流，所有调用方共享一个配额
func MethodIdentity() GRPCKeyFunc {
	return func(ctx context.Context, fullMethod string) string {
		return "method:" + fullMethod
	}
}

// UnaryServerInterceptor 返回 gRPC 一元调用服务端限流拦截器
// 被限流的调用以 ResourceExhausted 返回
//
// 使用示例:
//
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(
//	        ratelimit.UnaryServerInterceptor(limiter, ratelimit.PolicyAPI(), nil),
//	    ),
//	)
func UnaryServerInterceptor(limiter Limiter, policy Policy, keyFunc GRPCKeyFunc) grpc.UnaryServerInterceptor {
	if keyFunc == nil {
		keyFunc = PeerIdentity()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		identity := keyFunc(ctx, info.FullMethod)
		if identity == "" {
			return handler(ctx, req)
		}

		result, err := limiter.Check(ctx, policy, identity)
		if err != nil {
			return handler(ctx, req)
		}
		if !result.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded for %s, retry after %s", policy.Name, result.RetryAfter)
		}

		return handler(ctx, req)
	}
}
