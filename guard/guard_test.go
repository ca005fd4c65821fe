package guard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aegis/breaker"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newTestGuard(t *testing.T, cfg *Config, opts ...Option) *Guard {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	return g
}

func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)
}

func TestCorrelation(t *testing.T) {
	t.Run("缺少 X-Request-ID 时应该生成", func(t *testing.T) {
		g := newTestGuard(t, nil)
		router := setupTestRouter()
		router.Use(g.Correlation())

		var ctxID string
		router.GET("/test", func(c *gin.Context) {
			ctxID = GetRequestID(c.Request.Context())
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		headerID := w.Header().Get("X-Request-ID")
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, ctxID)
	})

	t.Run("已有 X-Request-ID 时应该透传", func(t *testing.T) {
		g := newTestGuard(t, nil)
		router := setupTestRouter()
		router.Use(g.Correlation())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "upstream-id-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "upstream-id-42", w.Header().Get("X-Request-ID"))
	})
}

func TestBodyLimit(t *testing.T) {
	t.Run("超过上限的请求体应该返回 413", func(t *testing.T) {
		g := newTestGuard(t, &Config{MaxBodyBytes: 16})
		router := setupTestRouter()
		router.Use(g.BodyLimit())
		router.POST("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		req := httptest.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", 64)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("上限内的请求体应该通过", func(t *testing.T) {
		g := newTestGuard(t, &Config{MaxBodyBytes: 1024})
		router := setupTestRouter()
		router.Use(g.BodyLimit())
		router.POST("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		req := httptest.NewRequest("POST", "/test", strings.NewReader("small"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTimeout(t *testing.T) {
	t.Run("超时请求应该返回 408", func(t *testing.T) {
		g := newTestGuard(t, &Config{Timeout: 20 * time.Millisecond})
		router := setupTestRouter()
		router.Use(g.Timeout())
		router.GET("/slow", func(c *gin.Context) {
			select {
			case <-c.Request.Context().Done():
			case <-time.After(time.Second):
			}
			// 迟到的写入必须被丢弃
			c.String(http.StatusOK, "too late")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/slow", nil))

		assert.Equal(t, http.StatusRequestTimeout, w.Code)
		assert.Contains(t, w.Body.String(), "request timed out")
		assert.NotContains(t, w.Body.String(), "too late")
	})

	t.Run("按时完成的请求不受影响", func(t *testing.T) {
		g := newTestGuard(t, &Config{Timeout: time.Second})
		router := setupTestRouter()
		router.Use(g.Timeout())
		router.GET("/fast", func(c *gin.Context) {
			c.String(http.StatusOK, "done")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/fast", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "done", w.Body.String())
	})

	t.Run("handler panic 应该返回 500 而不是挂起", func(t *testing.T) {
		g := newTestGuard(t, &Config{Timeout: time.Second})
		router := setupTestRouter()
		router.Use(g.Timeout())
		router.GET("/panic", func(c *gin.Context) {
			panic("boom")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestValidation(t *testing.T) {
	newRouter := func(t *testing.T) *gin.Engine {
		g := newTestGuard(t, nil)
		router := setupTestRouter()
		router.Use(g.Validation())
		router.GET("/search", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		router.POST("/submit", func(c *gin.Context) {
			body, _ := c.GetRawData()
			c.String(http.StatusOK, string(body))
		})
		return router
	}

	t.Run("SQL 注入查询串应该返回 400", func(t *testing.T) {
		router := newRouter(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/search?q=1'+or+'1'='1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("脚本注入请求体应该返回 400", func(t *testing.T) {
		router := newRouter(t)
		req := httptest.NewRequest("POST", "/submit", strings.NewReader(`{"bio":"<script>alert(1)</script>"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("路径穿越应该返回 400", func(t *testing.T) {
		router := newRouter(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/search?file=..%2F..%2Fetc%2Fpasswd", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("正常载荷应该通过且请求体完整", func(t *testing.T) {
		router := newRouter(t)
		payload := `{"name":"widget","price":42}`
		req := httptest.NewRequest("POST", "/submit", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		// 扫描后请求体被拼回，业务逻辑读到完整载荷
		assert.Equal(t, payload, w.Body.String())
	})
}

func TestDegradation(t *testing.T) {
	t.Run("多个熔断器打开时写请求应该被拒绝", func(t *testing.T) {
		reg, err := breaker.New(breaker.DefaultConfig())
		require.NoError(t, err)
		reg.ForceOpen("DatabaseOperations")
		reg.ForceOpen("PaymentAPI")

		g := newTestGuard(t, nil, WithBreaker(reg))
		router := setupTestRouter()
		router.Use(g.Degradation())
		router.POST("/orders", func(c *gin.Context) {
			c.String(http.StatusOK, "created")
		})
		router.GET("/orders", func(c *gin.Context) {
			mode := ModeFromContext(c.Request.Context())
			assert.True(t, mode.ReadOnly)
			c.String(http.StatusOK, "listed")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/orders", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		// 读请求照常放行，模式写入 context
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/orders", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("单个熔断器打开不触发只读", func(t *testing.T) {
		reg, err := breaker.New(breaker.DefaultConfig())
		require.NoError(t, err)
		reg.ForceOpen("PaymentAPI")

		g := newTestGuard(t, nil, WithBreaker(reg))
		router := setupTestRouter()
		router.Use(g.Degradation())
		router.POST("/orders", func(c *gin.Context) {
			c.String(http.StatusOK, "created")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/orders", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", Mode{}.String())
	assert.Equal(t, "non_critical", Mode{NonCritical: true}.String())
	assert.Equal(t, "read_only", Mode{ReadOnly: true}.String())
	assert.Equal(t, "cache_only", Mode{NonCritical: true, ReadOnly: true, CacheOnly: true}.String())
	assert.False(t, Mode{}.Degraded())
}

func TestPresets(t *testing.T) {
	g := newTestGuard(t, nil)

	assert.Len(t, g.Preset(PresetAuth), 4)
	assert.Len(t, g.Preset(PresetCheckout), 5)
	assert.Len(t, g.Preset(PresetAPI), 5)
	assert.Len(t, g.Preset(Preset("unknown")), 5)
}
