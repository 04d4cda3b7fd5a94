package handlers

import (
	"net/http"

	"supportdesk/internal/metrics"
	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
)

// ChannelHandler 渠道路由处理器
type ChannelHandler struct {
	router *services.ChannelRouter
}

// NewChannelHandler 创建渠道路由处理器
func NewChannelHandler(router *services.ChannelRouter) *ChannelHandler {
	return &ChannelHandler{router: router}
}

// Route 根据订单金额和活动类型决定可用的支持渠道
// @Summary 渠道路由
// @Tags Channel
// @Accept json
// @Produce json
// @Param body body services.ChannelRequest true "订单上下文"
// @Success 200 {object} services.ChannelDecision
// @Router /api/v1/channel/route [post]
func (h *ChannelHandler) Route(c *gin.Context) {
	var req services.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.OrderValue < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid order value",
			Message: "order_value must not be negative",
		})
		return
	}

	decision := h.router.Route(req)
	metrics.IncChannelDecision(decision.Priority)
	c.JSON(http.StatusOK, decision)
}

// Rules 当前生效的路由规则
// @Router /api/v1/channel/rules [get]
func (h *ChannelHandler) Rules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.router.Rules()})
}
