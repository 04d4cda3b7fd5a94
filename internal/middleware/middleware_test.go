package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supportdesk/internal/config"
	"supportdesk/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/v1/channel/rules", ok)
	r.POST("/api/v1/webhooks/freshchat", ok)
	return r
}

func do(r http.Handler, method, path string, header map[string]string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_Disabled(t *testing.T) {
	r := newRouter(NewRateLimiter(config.RateLimitingConfig{Enabled: false, RequestsPerMinute: 1, Burst: 1}).Middleware())
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
	}
}

func TestRateLimiter_GlobalAndRefill(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitingConfig{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	r := newRouter(rl.Middleware())

	_, before := metrics.RateLimitSnapshot()
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
	_, after := metrics.RateLimitSnapshot()
	assert.Equal(t, before["global"]+1, after["global"])

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
}

func TestRateLimiter_PathOverrideAndKeys(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitingConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
		KeyHeader:         "X-API-Key",
		WhitelistKeys:     []string{"trusted"},
		Paths: []config.PathRateLimitConfig{
			{Enabled: true, Prefix: "/api/v1/webhooks", RequestsPerMinute: 600, Burst: 5},
		},
	})
	r := newRouter(rl.Middleware())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/webhooks/freshchat", map[string]string{"X-API-Key": "chat"}))
	}
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/api/v1/webhooks/freshchat", map[string]string{"X-API-Key": "chat"}))

	// 不同 key 使用独立的桶
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", map[string]string{"X-API-Key": "a"}))
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/v1/channel/rules", map[string]string{"X-API-Key": "a"}))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", map[string]string{"X-API-Key": "b"}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", map[string]string{"X-API-Key": "trusted"}))
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS(config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://console.example.com"}}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/channel/rules", nil)
	req.Header.Set("Origin", "https://console.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/channel/rules", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogger(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	r := newRouter(RequestLogger(l))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/channel/rules", nil))
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/missing", nil))
}
