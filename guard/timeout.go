package guard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/aegis/clog"
)

// Timeout 返回请求超时中间件，使用配置的超时
func (g *Guard) Timeout() gin.HandlerFunc {
	return g.TimeoutWith(g.cfg.Timeout)
}

// TimeoutWith 返回指定超时的请求超时中间件
//
// 超时取消的是响应，不一定是下游的在途操作：handler 在带截止的
// context 下继续运行到自然结束，其结果仍会计入熔断/重试统计，
// 只是对已处置的响应的写入会被丢弃。传入 0 关闭此防护。
func (g *Guard) TimeoutWith(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		// handler goroutine 可能并发替换 c.Request，超时路径只用快照
		method, path := c.Request.Method, c.Request.URL.Path

		tw := &timeoutWriter{ResponseWriter: c.Writer}
		c.Writer = tw

		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				// handler 在独立 goroutine 中运行，外层的 recovery
				// 中间件罩不住它，panic 必须就地兜住
				if r := recover(); r != nil {
					g.logger.ErrorContext(ctx, "handler panicked",
						clog.Any("panic", r),
						clog.String("path", c.Request.URL.Path))
					if tw.claim() {
						writeJSONError(tw.ResponseWriter, http.StatusInternalServerError,
							"internal server error")
					}
				}
			}()
			c.Next()
		}()

		select {
		case <-done:
			// handler 在截止前完成
		case <-ctx.Done():
			if tw.claim() {
				g.logger.Warn("request rejected by guard",
					clog.String("guard", "timeout"),
					clog.String("reason", "deadline_exceeded"),
					clog.String("method", method),
					clog.String("path", path))
				g.countReject(ctx, "timeout", "deadline_exceeded")
				writeJSONError(tw.ResponseWriter, http.StatusRequestTimeout,
					"request timed out")
			}
			// 等 handler 退出，迟到的写入被 timeoutWriter 丢弃
			<-done
		}
	}
}

// timeoutWriter 包装 ResponseWriter 并跟踪写入归属
// 超时响应与 handler 响应互斥：先写者占有响应，另一方被丢弃。
type timeoutWriter struct {
	gin.ResponseWriter
	mu       sync.Mutex
	wrote    bool // handler 已开始写入
	timedOut bool // 超时响应已发出
}

// claim 超时路径尝试占有响应
func (w *timeoutWriter) claim() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wrote || w.timedOut {
		return false
	}
	w.timedOut = true
	return true
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		// 迟到的写入静默丢弃
		return len(b), nil
	}
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *timeoutWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// writeJSONError 绕过 gin 包装，直接向底层 writer 写 JSON 错误
func writeJSONError(w gin.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
