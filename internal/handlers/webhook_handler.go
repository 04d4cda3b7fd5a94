package handlers

import (
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebhookHandler 接收 Freshchat / Freshdesk 的 webhook，始终返回 200
type WebhookHandler struct {
	dispatcher *services.EventDispatcher
	logger     *logrus.Logger
}

// NewWebhookHandler 创建 webhook 处理器
func NewWebhookHandler(dispatcher *services.EventDispatcher, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Freshchat 聊天事件（消息、分配、解决、重开）
// @Summary Freshchat webhook
// @Tags Webhook
// @Accept json
// @Produce json
// @Success 200 {object} services.WebhookResult
// @Router /api/v1/webhooks/freshchat [post]
func (h *WebhookHandler) Freshchat(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warnf("Discarding unreadable Freshchat webhook: %v", err)
		c.JSON(http.StatusOK, services.WebhookResult{Status: services.WebhookStatusIgnored, Reason: "invalid_payload"})
		return
	}

	// 存储失败也以 200 应答，避免平台反复重投；结果中带 error 状态
	res, _ := h.dispatcher.ApplyWebhookAction(c.Request.Context(), "", payload)
	c.JSON(http.StatusOK, res)
}

// Freshdesk 坐席在工单中的回复，转发回聊天会话
// @Summary Freshdesk webhook
// @Tags Webhook
// @Accept json
// @Produce json
// @Success 200 {object} services.WebhookResult
// @Router /api/v1/webhooks/freshdesk [post]
func (h *WebhookHandler) Freshdesk(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warnf("Discarding unreadable Freshdesk webhook: %v", err)
		c.JSON(http.StatusOK, services.WebhookResult{Status: services.WebhookStatusIgnored, Reason: "invalid_payload"})
		return
	}

	res := h.dispatcher.RelayDeskReply(c.Request.Context(), services.ParseDeskReply(payload))
	c.JSON(http.StatusOK, res)
}
