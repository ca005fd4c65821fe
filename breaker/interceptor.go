package breaker

import (
	"context"

	"github.com/ceyewan/aegis/clog"
	"google.golang.org/grpc"
)

// InterceptorOption 拦截器选项函数
type InterceptorOption func(*interceptorOptions)

type interceptorOptions struct {
	keyFunc KeyFunc
	class   Class
}

// WithKeyFunc 设置熔断 Key 提取函数，默认按服务级别熔断
func WithKeyFunc(kf KeyFunc) InterceptorOption {
	return func(o *interceptorOptions) {
		if kf != nil {
			o.keyFunc = kf
		}
	}
}

// WithClass 设置 gRPC 调用使用的业务维度，默认 ClassExternalAPI
func WithClass(class Class) InterceptorOption {
	return func(o *interceptorOptions) {
		o.class = class
	}
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 为每个 gRPC 调用提供熔断保护
//
// 使用示例:
//
//	reg, _ := breaker.New(cfg, breaker.WithLogger(logger))
//	conn, _ := grpc.NewClient(
//		"localhost:9001",
//		grpc.WithUnaryInterceptor(reg.UnaryClientInterceptor()),
//	)
func (r *registry) UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	io := interceptorOptions{
		keyFunc: ServiceLevelKey(),
		class:   ClassExternalAPI,
	}
	for _, opt := range opts {
		opt(&io)
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		name := io.keyFunc(ctx, method, cc)

		r.logger.Debug("unary call with circuit breaker",
			clog.String("name", name),
			clog.String("method", method))

		_, err := r.Execute(ctx, name, io.class, func(ctx context.Context) (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, callOpts...)
		})
		return err
	}
}
