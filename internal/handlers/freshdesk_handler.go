package handlers

import (
	"context"
	"errors"
	"net/http"

	"supportdesk/internal/integration"
	"supportdesk/internal/models"
	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TicketSyncer 同步执行工单同步
type TicketSyncer interface {
	SyncTicket(ctx context.Context, p integration.TicketSyncPayload) (*integration.SyncResult, error)
}

// TicketSyncRequest 手动同步请求
type TicketSyncRequest struct {
	IncidenceID     string `json:"incidence_id" binding:"required"`
	TicketID        int64  `json:"ticket_id"`
	FreshchatUserID string `json:"freshchat_user_id"`
}

// FreshdeskHandler Freshdesk 工单同步处理器
type FreshdeskHandler struct {
	syncer           TicketSyncer
	incidenceService *services.IncidenceService
	logger           *logrus.Logger
}

// NewFreshdeskHandler 创建工单同步处理器
func NewFreshdeskHandler(syncer TicketSyncer, incidenceService *services.IncidenceService, logger *logrus.Logger) *FreshdeskHandler {
	return &FreshdeskHandler{
		syncer:           syncer,
		incidenceService: incidenceService,
		logger:           logger,
	}
}

// SyncTicket 为 Incidence 创建或更新 Freshdesk 工单
// @Summary 同步 Freshdesk 工单
// @Tags Freshdesk
// @Accept json
// @Produce json
// @Param body body TicketSyncRequest true "同步参数"
// @Success 200 {object} integration.SyncResult
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/freshdesk/sync [post]
func (h *FreshdeskHandler) SyncTicket(c *gin.Context) {
	var req TicketSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	inc, err := h.incidenceService.GetWithTimeline(ctx, req.IncidenceID)
	if err != nil {
		writeServiceError(c, h.logger, "sync ticket", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}

	result, err := h.syncer.SyncTicket(ctx, integration.TicketSyncPayload{
		Incidence:       integration.SnapshotOf(inc),
		FreshchatUserID: req.FreshchatUserID,
		FirstMessage:    firstUserMessage(inc.Timeline),
		TicketID:        req.TicketID,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, integration.ErrUpstreamDisabled) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Errorf("Failed to sync ticket for incidence %s: %v", inc.ID, err)
		c.JSON(status, ErrorResponse{
			Error:   "Failed to sync ticket",
			Message: err.Error(),
			Code:    status,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncAllResult 批量同步结果
type SyncAllResult struct {
	Total     int      `json:"total"`
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// syncAllLimit 单次批量同步的最大数量
const syncAllLimit = 500

// SyncAll 把所有处理中的 Incidence 同步到 Freshdesk，单条失败不影响其余
// @Summary 批量同步 Freshdesk 工单
// @Tags Freshdesk
// @Produce json
// @Success 200 {object} SyncAllResult
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/freshdesk/sync-all [post]
func (h *FreshdeskHandler) SyncAll(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.incidenceService.ListOpenWithTimeline(ctx, syncAllLimit)
	if err != nil {
		writeServiceError(c, h.logger, "sync tickets", err)
		return
	}

	res := SyncAllResult{Total: len(list)}
	for i := range list {
		inc := &list[i]
		_, err := h.syncer.SyncTicket(ctx, integration.TicketSyncPayload{
			Incidence:    integration.SnapshotOf(inc),
			FirstMessage: firstUserMessage(inc.Timeline),
		})
		if errors.Is(err, integration.ErrUpstreamDisabled) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "Failed to sync tickets",
				Message: err.Error(),
				Code:    http.StatusServiceUnavailable,
			})
			return
		}
		if err != nil {
			h.logger.WithField("incidence_id", inc.ID).Warnf("Bulk ticket sync failed: %v", err)
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, inc.ID)
			continue
		}
		res.Synced++
	}
	h.logger.Infof("Bulk ticket sync finished: %d synced, %d failed", res.Synced, res.Failed)
	c.JSON(http.StatusOK, res)
}

func firstUserMessage(events []models.IncidenceTimeline) string {
	for _, ev := range events {
		if ev.EventType == models.TimelineMessage && ev.Actor == models.ActorUser {
			return ev.Content
		}
	}
	return ""
}
