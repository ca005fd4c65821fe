package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit 返回请求体体积限制中间件，使用配置的上限
func (g *Guard) BodyLimit() gin.HandlerFunc {
	return g.BodyLimitWith(g.cfg.MaxBodyBytes)
}

// BodyLimitWith 返回指定上限的体积限制中间件
// Content-Length 已知且超限时直接 413；分块传输的请求体
// 用 MaxBytesReader 兜底，读取越界时由 handler 侧报错。
func (g *Guard) BodyLimitWith(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			g.reject(c, "size", "content_length_exceeded")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "request entity too large",
				"max_bytes": maxBytes,
			})
			return
		}

		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
