package guard

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Preset 路由类别预设
type Preset string

const (
	// PresetAuth 认证路由：小请求体、紧超时、严格校验
	PresetAuth Preset = "auth"
	// PresetAPI 常规 API 路由：完整防护链、默认阈值
	PresetAPI Preset = "api"
	// PresetCheckout 下单路由：全部防护、保守阈值
	PresetCheckout Preset = "checkout"
)

// Preset 返回指定路由类别的防护组合
// 未知预设退化为完整防护链
func (g *Guard) Preset(p Preset) []gin.HandlerFunc {
	switch p {
	case PresetAuth:
		// 认证请求体很小，响应必须快；降级不拦截认证本身
		return []gin.HandlerFunc{
			g.Correlation(),
			g.BodyLimitWith(1 << 20),
			g.TimeoutWith(10 * time.Second),
			g.Validation(),
		}
	case PresetCheckout:
		return []gin.HandlerFunc{
			g.Correlation(),
			g.BodyLimitWith(1 << 20),
			g.TimeoutWith(15 * time.Second),
			g.Validation(),
			g.Degradation(),
		}
	case PresetAPI:
		return g.Chain()
	default:
		return g.Chain()
	}
}
