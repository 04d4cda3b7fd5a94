package handlers

import (
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AnalyticsHandler 统计报表处理器
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	logger           *logrus.Logger
}

// NewAnalyticsHandler 创建统计处理器
func NewAnalyticsHandler(analyticsService *services.AnalyticsService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// KPIs 今日指标
// @Summary 今日 KPI
// @Tags Analytics
// @Produce json
// @Success 200 {object} services.KPIReport
// @Router /api/v1/analytics/kpis [get]
func (h *AnalyticsHandler) KPIs(c *gin.Context) {
	report, err := h.analyticsService.KPIs(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, "compute KPIs", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// WeeklyReport 近 7 天报告
// @Router /api/v1/analytics/weekly-report [get]
func (h *AnalyticsHandler) WeeklyReport(c *gin.Context) {
	report, err := h.analyticsService.WeeklyReport(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, "build weekly report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
