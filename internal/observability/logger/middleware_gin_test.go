package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareLogsRejectedTransitionAtWarn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "invalid_transition", "invalid_transition" },
	}))
	r.POST("/order-slips/:id/transitions", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid_transition: order_slip Expired -> ForDR"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/order-slips/42/transitions", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Role", "OM")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "/order-slips/:id/transitions", fields["route"])
	assert.Equal(t, "42", fields["param.id"])
	assert.Equal(t, "om", fields["role"])
	assert.Equal(t, "invalid_transition", fields["error_type"])
	assert.NotContains(t, fields, "error_code")
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/v1/placements", http.StatusInternalServerError))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/v1/placements/:id/withdraw", http.StatusUnprocessableEntity))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/v1/placements", http.StatusCreated))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", http.StatusOK))
}
