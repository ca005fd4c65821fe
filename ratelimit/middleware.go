package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// IdentityFunc 从请求中提取限流身份
type IdentityFunc func(*gin.Context) string

// DefaultIdentity 默认身份提取：已认证用户优先于客户端 IP
// 认证中间件需将用户 ID 写入 gin 上下文的 "user_id" 键
func DefaultIdentity(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return Identity(userID, "")
	}
	return Identity("", c.ClientIP())
}

// GinMiddleware 创建 Gin 限流中间件
//
// 行为:
//   - 每个响应携带 X-RateLimit-Limit / Remaining / Reset 头
//   - 被限流时返回 429，携带 Retry-After 头与重置时间
//   - 渐进减速延迟在中间件内注入，睡眠受请求 context 约束
//
// 使用示例:
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter, ratelimit.PolicyAPI(), nil))
func GinMiddleware(limiter Limiter, policy Policy, identityFunc IdentityFunc) gin.HandlerFunc {
	// 策略在接入时固定，配置错误在注册路由时立即暴露
	if err := policy.validate(); err != nil {
		panic(fmt.Sprintf("ratelimit: invalid policy %q: %v", policy.Name, err))
	}
	if identityFunc == nil {
		identityFunc = DefaultIdentity
	}

	return func(c *gin.Context) {
		identity := identityFunc(c)
		if identity == "" {
			c.Next()
			return
		}

		result, err := limiter.Check(c.Request.Context(), policy, identity)
		if err != nil {
			// 策略在构造期已校验，空身份在上方已拦截，
			// 正常运行时不会走到这里；按放行处理
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
				"reset_at":    result.ResetAt.UTC().Format(time.RFC3339),
			})
			return
		}

		if result.Delay > 0 {
			timer := time.NewTimer(result.Delay)
			select {
			case <-timer.C:
			case <-c.Request.Context().Done():
				timer.Stop()
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// GinBurstMiddleware 创建秒级突发检测中间件
// 与窗口限流中间件叠加使用，拦截打满窗口配额的尖刺流量
//
// 使用示例:
//
//	burst := ratelimit.NewBurstLimiter(nil, ratelimit.WithLogger(logger))
//	r.Use(ratelimit.GinBurstMiddleware(burst, nil))
func GinBurstMiddleware(burst *BurstLimiter, identityFunc IdentityFunc) gin.HandlerFunc {
	if identityFunc == nil {
		identityFunc = DefaultIdentity
	}

	return func(c *gin.Context) {
		identity := identityFunc(c)
		if identity == "" {
			c.Next()
			return
		}

		if !burst.Allow(identity) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests in a short period",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}
