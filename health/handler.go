package health

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册只读健康路由
func (a *aggregator) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", a.handleSnapshot)
}

// handleSnapshot 健康快照始终返回 200，降级与否由 status 字段表达，
// 交由监控侧判断；探活语义（如 K8s readiness）应另行裁剪。
func (a *aggregator) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, a.Snapshot())
}

// RegisterRoutes 注册运维路由，应挂载在带访问控制的路由组上
func (a *admin) RegisterRoutes(r gin.IRouter) {
	r.POST("/breakers/reset", a.handleResetAll)
	r.POST("/breakers/:name/reset", a.handleBreaker(a.Reset))
	r.POST("/breakers/:name/open", a.handleBreaker(a.ForceOpen))
	r.POST("/breakers/:name/close", a.handleBreaker(a.ForceClose))
}

func (a *admin) handleResetAll(c *gin.Context) {
	a.ResetAll()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *admin) handleBreaker(op func(name string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := op(name); err != nil {
			if errors.Is(err, ErrUnknownBreaker) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown breaker", "name": name})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "name": name})
	}
}
