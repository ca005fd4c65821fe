package guard

import "context"

// Context 键定义
// 与 clog.WithStandardContext 的提取键保持一致，
// 写入后日志自动携带 request_id / user_id 字段。
const (
	// RequestIDKey 请求关联标识的 context 键
	RequestIDKey = "request_id"

	// UserIDKey 用户标识的 context 键
	UserIDKey = "user_id"
)

// modeKey 降级模式的 context 键（非导出类型，避免碰撞）
type modeKey struct{}

// GetRequestID 从 context 中提取请求关联标识，不存在时返回空串
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// ModeFromContext 从 context 中提取降级模式
// 未经过降级中间件时返回零值（正常模式）
func ModeFromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(modeKey{}).(Mode); ok {
		return m
	}
	return Mode{}
}

// withMode 将降级模式写入 context
func withMode(ctx context.Context, m Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, m)
}
