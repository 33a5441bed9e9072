package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chunked-loader/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter() (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	router := gin.New()
	router.Use(middleware.GinZapLogger(zap.New(core)))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/admin/settings", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/broken", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	return router, logs
}

func TestGinZapLogger(t *testing.T) {
	t.Run("Logs completed request with request id", func(t *testing.T) {
		router, logs := newObservedRouter()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/settings?x=1", nil))

		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		entries := logs.FilterMessage("Request completed").All()
		if assert.Len(t, entries, 1) {
			assert.Equal(t, "/admin/settings?x=1", entries[0].ContextMap()["path"])
		}
	})

	t.Run("Keeps incoming request id", func(t *testing.T) {
		router, _ := newObservedRouter()
		req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("Skips health", func(t *testing.T) {
		router, logs := newObservedRouter()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("Server errors at error level", func(t *testing.T) {
		router, logs := newObservedRouter()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))
		assert.Equal(t, 1, logs.FilterMessage("Server error").Len())
	})
}
