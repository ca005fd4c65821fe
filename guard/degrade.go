package guard

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
)

// Mode 降级模式
// 零值为正常模式；逐请求计算，不持久化
type Mode struct {
	// NonCritical 非关键路径应跳过（内存压力）
	NonCritical bool `json:"non_critical"`
	// ReadOnly 写请求应被拒绝（多个依赖熔断）
	ReadOnly bool `json:"read_only"`
	// CacheOnly 只从缓存读取（内存压力与依赖故障叠加）
	CacheOnly bool `json:"cache_only"`
}

// Degraded 是否处于任一降级模式
func (m Mode) Degraded() bool {
	return m.NonCritical || m.ReadOnly || m.CacheOnly
}

// String 返回模式的字符串表示
func (m Mode) String() string {
	switch {
	case m.CacheOnly:
		return "cache_only"
	case m.ReadOnly:
		return "read_only"
	case m.NonCritical:
		return "non_critical"
	default:
		return "normal"
	}
}

// level 模式的数值表示，供 Gauge 上报
func (m Mode) level() float64 {
	switch {
	case m.CacheOnly:
		return 3
	case m.ReadOnly:
		return 2
	case m.NonCritical:
		return 1
	default:
		return 0
	}
}

// Degrader 降级判定器
// 从运行时内存统计与熔断器注册表读取实时信号
type Degrader struct {
	registry     breaker.Registry
	memThreshold float64
	openLimit    int
	logger       clog.Logger

	// 内存采样缓存：ReadMemStats 会短暂停顿，不能逐请求调用
	mu        sync.Mutex
	memRatio  float64
	sampledAt time.Time
}

// memSampleTTL 内存占比采样间隔
const memSampleTTL = time.Second

func newDegrader(registry breaker.Registry, memThreshold float64, openLimit int, logger clog.Logger) *Degrader {
	return &Degrader{
		registry:     registry,
		memThreshold: memThreshold,
		openLimit:    openLimit,
		logger:       logger,
	}
}

// heapRatio 返回堆内存占比，采样结果缓存 memSampleTTL
func (d *Degrader) heapRatio() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if time.Since(d.sampledAt) < memSampleTTL {
		return d.memRatio
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapSys > 0 {
		d.memRatio = float64(ms.HeapAlloc) / float64(ms.HeapSys)
	}
	d.sampledAt = time.Now()
	return d.memRatio
}

// Evaluate 计算当前降级模式
//
// 判定规则:
//   - 堆内存占比 > 阈值 ⇒ NonCritical
//   - 打开的熔断器数量 > 容忍值 ⇒ ReadOnly
//   - 两者同时成立 ⇒ CacheOnly
func (d *Degrader) Evaluate() Mode {
	var m Mode

	m.NonCritical = d.heapRatio() > d.memThreshold

	if d.registry != nil {
		open := 0
		for _, snap := range d.registry.Snapshot() {
			if snap.State == breaker.StateOpen.String() {
				open++
			}
		}
		m.ReadOnly = open > d.openLimit
	}

	m.CacheOnly = m.NonCritical && m.ReadOnly
	return m
}

// mutating 写方法集合
var mutating = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Degradation 返回降级中间件
// 每个请求重新判定模式并写入 context；只读模式下写请求以 503 拒绝
func (g *Guard) Degradation() gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := g.degrader.Evaluate()

		if g.meter != nil {
			if gauge, err := g.meter.Gauge(MetricDegradedMode, "Current degradation mode"); err == nil {
				gauge.Set(c.Request.Context(), mode.level())
			}
		}

		if mode.Degraded() {
			g.logger.WarnContext(c.Request.Context(), "serving in degraded mode",
				clog.String("mode", mode.String()),
				clog.String("path", c.Request.URL.Path))
		}

		if mode.ReadOnly && mutating[c.Request.Method] {
			g.reject(c, "degradation", mode.String())
			c.Header("Retry-After", "30")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "service is in reduced mode, writes are temporarily disabled",
				"mode":  mode.String(),
			})
			return
		}

		c.Request = c.Request.WithContext(withMode(c.Request.Context(), mode))
		c.Next()
	}
}
