package handlers

import (
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CallHandler 回拨请求处理器
type CallHandler struct {
	incidenceService *services.IncidenceService
	logger           *logrus.Logger
}

// NewCallHandler 创建回拨处理器
func NewCallHandler(incidenceService *services.IncidenceService, logger *logrus.Logger) *CallHandler {
	return &CallHandler{
		incidenceService: incidenceService,
		logger:           logger,
	}
}

// RequestCall 用户请求回拨
// @Summary 请求回拨
// @Tags Call
// @Accept json
// @Produce json
// @Param body body services.CallRequest true "回拨信息"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/call/request [post]
func (h *CallHandler) RequestCall(c *gin.Context) {
	var req services.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inc, created, err := h.incidenceService.RequestCall(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, h.logger, "request call", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: services.CallRequestMessage,
		Data: gin.H{
			"incidence_id": inc.ID,
			"created":      created,
			"phone":        inc.UserPhone,
		},
	})
}

// PendingCalls 待回拨列表
// @Router /api/v1/call/pending [get]
func (h *CallHandler) PendingCalls(c *gin.Context) {
	list, err := h.incidenceService.PendingCalls(c.Request.Context(), 50)
	if err != nil {
		writeServiceError(c, h.logger, "list pending calls", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": list,
		"total": len(list),
	})
}
