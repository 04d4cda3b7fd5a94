package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supportdesk/internal/config"
	"supportdesk/internal/integration"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func healthRouter(t *testing.T, db *gorm.DB, breakers ...*integration.Breaker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(config.GetDefaultConfig(), db, nil, breakers, "test", nil)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	return r
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_HealthyAndReady(t *testing.T) {
	r := healthRouter(t, openSQLite(t), integration.NewBreaker("freshchat", config.CircuitBreakerConfig{Enabled: true}))

	w := get(r, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["database"].Status)
	assert.Equal(t, "disabled", resp.Services["redis"].Status)
	assert.Equal(t, "healthy", resp.Services["freshchat"].Status)

	assert.Equal(t, http.StatusOK, get(r, "/ready").Code)
}

func TestHealth_OpenBreakerIsDegraded(t *testing.T) {
	b := integration.NewBreaker("freshdesk", config.CircuitBreakerConfig{Enabled: true, MaxFailures: 1, ResetTimeout: time.Hour})
	b.OnFailure()
	r := healthRouter(t, openSQLite(t), b)

	w := get(r, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Services["freshdesk"].Status)
}

func TestHealth_DatabaseDown(t *testing.T) {
	db := openSQLite(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	r := healthRouter(t, db)

	w := get(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "unhealthy", resp.Status)

	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/ready").Code)
}
