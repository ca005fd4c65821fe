package guard

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// headerRequestID 请求关联标识的传输头
const headerRequestID = "X-Request-ID"

// Correlation 返回关联标识中间件
// 永远第一个运行，永不拒绝请求：
//   - 透传上游已有的 X-Request-ID，否则生成 uuid v4
//   - 写入响应头与请求头（便于向后端传播）
//   - 写入请求 context，clog 按标准键自动提取
func (g *Guard) Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Header(headerRequestID, id)
		c.Request.Header.Set(headerRequestID, id)

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, id)
		// 认证中间件写入的 user_id 同步进 context，供日志提取
		if userID := c.GetString("user_id"); userID != "" {
			ctx = context.WithValue(ctx, UserIDKey, userID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(RequestIDKey, id)

		c.Next()
	}
}
