package handlers

import (
	"context"
	"errors"
	"net/http"

	"supportdesk/internal/integration"
	"supportdesk/internal/models"
	"supportdesk/internal/services"
	"supportdesk/pkg/freshchat"
	"supportdesk/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChatSender 同步发送聊天消息
type ChatSender interface {
	SendChat(ctx context.Context, p integration.ChatSendPayload) (*freshchat.Message, error)
}

// SendMessageRequest 坐席发送消息
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	AgentID        string `json:"agent_id"`
}

// MessageHandler 坐席消息处理器
type MessageHandler struct {
	sender           ChatSender
	incidenceService *services.IncidenceService
	logger           *logrus.Logger
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(sender ChatSender, incidenceService *services.IncidenceService, logger *logrus.Logger) *MessageHandler {
	return &MessageHandler{
		sender:           sender,
		incidenceService: incidenceService,
		logger:           logger,
	}
}

// SendMessage 通过 Freshchat 发送坐席消息，成功后写入 Incidence 时间线
// @Summary 发送坐席消息
// @Tags Message
// @Accept json
// @Produce json
// @Param body body SendMessageRequest true "消息"
// @Success 200 {object} SuccessResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/messages/send [post]
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !utils.ValidateMessage(req.Message) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid message",
			Message: "message must be between 1 and 4096 characters",
		})
		return
	}
	ctx := c.Request.Context()

	msg, err := h.sender.SendChat(ctx, integration.ChatSendPayload{
		ConversationID: req.ConversationID,
		Text:           req.Message,
		ActorType:      freshchat.ActorAgent,
		ActorID:        req.AgentID,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, integration.ErrUpstreamDisabled) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Errorf("Failed to send message to conversation %s: %v", req.ConversationID, err)
		c.JSON(status, ErrorResponse{
			Error:   "Failed to send message",
			Message: err.Error(),
			Code:    status,
		})
		return
	}

	data := gin.H{"conversation_id": req.ConversationID}
	if msg != nil {
		data["message_id"] = msg.ID
	}

	inc, err := h.incidenceService.FindByConversation(ctx, req.ConversationID)
	if err != nil {
		h.logger.Errorf("Failed to look up incidence for conversation %s: %v", req.ConversationID, err)
	}
	if inc != nil {
		meta := map[string]interface{}{"agent_id": req.AgentID, "source": "agent_console"}
		if msg != nil {
			meta["message_id"] = msg.ID
		}
		event, err := h.incidenceService.AppendTimeline(ctx, inc.ID, &services.TimelineAppendRequest{
			EventType: models.TimelineMessage,
			Actor:     models.ActorAgent,
			Content:   req.Message,
			Metadata:  meta,
		})
		if err != nil {
			h.logger.Errorf("Message sent but timeline append failed for incidence %s: %v", inc.ID, err)
		} else if event != nil {
			data["incidence_id"] = inc.ID
			data["timeline_event_id"] = event.ID
		}
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Message sent", Data: data})
}
