package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"supportdesk/internal/config"
	"supportdesk/internal/integration"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	config   *config.Config
	db       *gorm.DB
	redis    *redis.Client
	breakers []*integration.Breaker
	version  string
	logger   *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器；redis 为 nil 表示未启用
func NewHealthHandler(cfg *config.Config, db *gorm.DB, rdb *redis.Client, breakers []*integration.Breaker, version string, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{
		config:   cfg,
		db:       db,
		redis:    rdb,
		breakers: breakers,
		version:  version,
		logger:   logger,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Health 健康检查端点；数据库不可用为 unhealthy (503)，其余依赖异常为 degraded (200)
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	checks := h.config.Monitoring.HealthChecks
	if checks.Database {
		info := h.checkDatabase(ctx)
		response.Services["database"] = info
		if info.Status != "healthy" {
			response.Status = "unhealthy"
		}
	}
	if checks.Redis {
		info := h.checkRedis(ctx)
		response.Services["redis"] = info
		if info.Status == "unhealthy" && response.Status == "healthy" {
			response.Status = "degraded"
		}
	}
	if checks.Upstreams {
		for _, b := range h.breakers {
			info := checkBreaker(b)
			response.Services[b.Name()] = info
			if info.Status != "healthy" && response.Status == "healthy" {
				response.Status = "degraded"
			}
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Ready 就绪检查端点，只检查数据库
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := true
	services := make(map[string]string)
	if info := h.checkDatabase(ctx); info.Status == "healthy" {
		services["database"] = "ready"
	} else {
		services["database"] = "not_ready"
		ready = false
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"ready":     ready,
		"timestamp": time.Now(),
		"services":  services,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()
	if h.db == nil {
		return ServiceInfo{Status: "unhealthy", Error: "database connection not initialized"}
	}
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	info := ServiceInfo{
		Status:  "healthy",
		Latency: time.Since(start).String(),
		Details: map[string]interface{}{"driver": h.db.Dialector.Name()},
	}
	if err != nil {
		h.logger.Warnf("Database health check failed: %v", err)
		info.Status = "unhealthy"
		info.Error = err.Error()
	}
	return info
}

func (h *HealthHandler) checkRedis(ctx context.Context) ServiceInfo {
	if h.redis == nil {
		return ServiceInfo{Status: "disabled"}
	}
	start := time.Now()
	info := ServiceInfo{
		Status:  "healthy",
		Details: map[string]interface{}{"addr": h.redis.Options().Addr},
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warnf("Redis health check failed: %v", err)
		info.Status = "unhealthy"
		info.Error = err.Error()
	}
	info.Latency = time.Since(start).String()
	return info
}

func checkBreaker(b *integration.Breaker) ServiceInfo {
	stats := b.Stats()
	info := ServiceInfo{Status: "healthy", Details: stats}
	switch b.State() {
	case integration.BreakerOpen:
		info.Status = "unhealthy"
		info.Error = "circuit breaker is open"
	case integration.BreakerHalfOpen:
		info.Status = "recovering"
	}
	return info
}
