package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

// newTestRegistry 创建一个带若干已执行过的熔断器的注册表
func newTestRegistry(t *testing.T, names ...string) breaker.Registry {
	t.Helper()

	reg, err := breaker.New(breaker.DefaultConfig())
	require.NoError(t, err)

	for _, name := range names {
		_, err := reg.Execute(context.Background(), name, breaker.ClassExternalAPI,
			func(ctx context.Context) (any, error) { return "ok", nil })
		require.NoError(t, err)
	}
	return reg
}

func TestNewNilRegistry(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrRegistryNil)

	_, err = NewAdmin(nil)
	assert.ErrorIs(t, err, ErrRegistryNil)
}

func TestSnapshot(t *testing.T) {
	t.Run("全部正常时状态为 ok", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI", "InventoryDB")
		agg, err := New(&Config{Service: "orders"}, reg)
		require.NoError(t, err)

		snap := agg.Snapshot()

		assert.Equal(t, StatusOK, snap.Status)
		assert.Equal(t, "orders", snap.Service)
		assert.Equal(t, "normal", snap.DegradationMode)
		assert.Len(t, snap.Breakers, 2)
		assert.Equal(t, uint64(1), snap.Breakers["PaymentAPI"].Requests)
		assert.Positive(t, snap.Process.Goroutines)
		assert.Positive(t, snap.Process.HeapAllocBytes)
		assert.GreaterOrEqual(t, snap.Process.UptimeSeconds, 0.0)
	})

	t.Run("存在打开的熔断器时状态为 degraded", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		reg.ForceOpen("PaymentAPI")

		agg, err := New(nil, reg)
		require.NoError(t, err)

		snap := agg.Snapshot()
		assert.Equal(t, StatusDegraded, snap.Status)
		assert.Equal(t, breaker.StateOpen.String(), snap.Breakers["PaymentAPI"].State)
	})

	t.Run("快照时间应该是实时的", func(t *testing.T) {
		reg := newTestRegistry(t)
		agg, err := New(nil, reg)
		require.NoError(t, err)

		before := time.Now()
		snap := agg.Snapshot()
		assert.False(t, snap.Time.Before(before))
	})
}

func TestHealthEndpoint(t *testing.T) {
	reg := newTestRegistry(t, "PaymentAPI")
	agg, err := New(&Config{Service: "orders"}, reg)
	require.NoError(t, err)

	router := setupTestRouter()
	agg.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusOK, body.Status)
	assert.Contains(t, body.Breakers, "PaymentAPI")
}

func TestAdminOperations(t *testing.T) {
	t.Run("ForceOpen 后熔断器应该拒绝请求", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		adm, err := NewAdmin(reg)
		require.NoError(t, err)

		require.NoError(t, adm.ForceOpen("PaymentAPI"))

		_, execErr := reg.Execute(context.Background(), "PaymentAPI", breaker.ClassExternalAPI,
			func(ctx context.Context) (any, error) { return "ok", nil })
		assert.ErrorIs(t, execErr, breaker.ErrOpenState)

		require.NoError(t, adm.ForceClose("PaymentAPI"))
		_, execErr = reg.Execute(context.Background(), "PaymentAPI", breaker.ClassExternalAPI,
			func(ctx context.Context) (any, error) { return "ok", nil })
		assert.NoError(t, execErr)
	})

	t.Run("未注册的名称应该返回 ErrUnknownBreaker", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		adm, err := NewAdmin(reg)
		require.NoError(t, err)

		assert.ErrorIs(t, adm.ForceOpen("Nope"), ErrUnknownBreaker)
		assert.ErrorIs(t, adm.ForceClose("Nope"), ErrUnknownBreaker)
		assert.ErrorIs(t, adm.Reset("Nope"), ErrUnknownBreaker)
	})

	t.Run("ResetAll 应该清空计数并且幂等", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		adm, err := NewAdmin(reg)
		require.NoError(t, err)

		adm.ResetAll()
		adm.ResetAll()

		snap := reg.Snapshot()
		assert.Equal(t, uint64(0), snap["PaymentAPI"].Requests)
	})
}

func TestAdminEndpoints(t *testing.T) {
	newAdminRouter := func(t *testing.T, reg breaker.Registry) *gin.Engine {
		t.Helper()
		adm, err := NewAdmin(reg)
		require.NoError(t, err)
		router := setupTestRouter()
		adm.RegisterRoutes(router.Group("/admin"))
		return router
	}

	t.Run("POST open 应该强制打开熔断器", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		router := newAdminRouter(t, reg)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/breakers/PaymentAPI/open", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, breaker.StateOpen.String(), reg.Snapshot()["PaymentAPI"].State)
	})

	t.Run("未注册的名称应该返回 404", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		router := newAdminRouter(t, reg)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/breakers/Nope/open", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("POST reset 应该恢复熔断器", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI")
		reg.ForceOpen("PaymentAPI")
		router := newAdminRouter(t, reg)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/breakers/PaymentAPI/reset", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, breaker.StateClosed.String(), reg.Snapshot()["PaymentAPI"].State)
	})

	t.Run("POST breakers/reset 应该重置全部", func(t *testing.T) {
		reg := newTestRegistry(t, "PaymentAPI", "InventoryDB")
		reg.ForceOpen("PaymentAPI")
		router := newAdminRouter(t, reg)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/breakers/reset", nil))

		require.Equal(t, http.StatusOK, w.Code)
		for name, snap := range reg.Snapshot() {
			assert.Equal(t, breaker.StateClosed.String(), snap.State, "breaker %s", name)
		}
	})
}
