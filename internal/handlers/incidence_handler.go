package handlers

import (
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IncidenceHandler Incidence 管理处理器
type IncidenceHandler struct {
	incidenceService *services.IncidenceService
	logger           *logrus.Logger
}

// NewIncidenceHandler 创建 Incidence 处理器
func NewIncidenceHandler(incidenceService *services.IncidenceService, logger *logrus.Logger) *IncidenceHandler {
	return &IncidenceHandler{
		incidenceService: incidenceService,
		logger:           logger,
	}
}

// CreateIncidence 创建 Incidence
// @Summary 创建 Incidence
// @Tags Incidence
// @Accept json
// @Produce json
// @Param incidence body services.IncidenceCreateRequest true "Incidence 信息"
// @Success 201 {object} models.Incidence
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/incidences [post]
func (h *IncidenceHandler) CreateIncidence(c *gin.Context) {
	var req services.IncidenceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inc, err := h.incidenceService.Create(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, h.logger, "create incidence", err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// ListIncidences 分页列出 Incidence
// @Summary 获取 Incidence 列表
// @Tags Incidence
// @Produce json
// @Param user_id query string false "用户ID"
// @Param outcome query string false "结果"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} PaginatedResponse
// @Router /api/v1/incidences [get]
func (h *IncidenceHandler) ListIncidences(c *gin.Context) {
	var req services.IncidenceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	list, total, err := h.incidenceService.List(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, h.logger, "list incidences", err)
		return
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     list,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pageCount(total, req.PageSize),
	})
}

// GetIncidence 获取 Incidence 及时间线
// @Summary 获取 Incidence 详情
// @Tags Incidence
// @Produce json
// @Param id path string true "Incidence ID"
// @Success 200 {object} models.Incidence
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/incidences/{id} [get]
func (h *IncidenceHandler) GetIncidence(c *gin.Context) {
	inc, err := h.incidenceService.GetWithTimeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, h.logger, "get incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// UpdateIncidence 更新可变字段
// @Router /api/v1/incidences/{id} [patch]
func (h *IncidenceHandler) UpdateIncidence(c *gin.Context) {
	var req services.IncidenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inc, err := h.incidenceService.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeServiceError(c, h.logger, "update incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// DeleteIncidence 删除 Incidence 及其时间线
// @Router /api/v1/incidences/{id} [delete]
func (h *IncidenceHandler) DeleteIncidence(c *gin.Context) {
	deleted, err := h.incidenceService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, h.logger, "delete incidence", err)
		return
	}
	if !deleted {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Incidence deleted successfully"})
}

// CloseIncidence 关闭 Incidence
// @Summary 关闭 Incidence
// @Tags Incidence
// @Accept json
// @Produce json
// @Param id path string true "Incidence ID"
// @Param body body services.CloseRequest true "关闭结果"
// @Success 200 {object} models.Incidence
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/incidences/{id}/close [post]
func (h *IncidenceHandler) CloseIncidence(c *gin.Context) {
	var req services.CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inc, err := h.incidenceService.Close(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeServiceError(c, h.logger, "close incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// ReopenIncidence 重新打开已关闭的 Incidence
// @Router /api/v1/incidences/{id}/reopen [post]
func (h *IncidenceHandler) ReopenIncidence(c *gin.Context) {
	inc, err := h.incidenceService.Reopen(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, h.logger, "reopen incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// AssignIncidence 分配坐席
// @Router /api/v1/incidences/{id}/assign [post]
func (h *IncidenceHandler) AssignIncidence(c *gin.Context) {
	var req services.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inc, err := h.incidenceService.Assign(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeServiceError(c, h.logger, "assign incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// GetTimeline 获取时间线（按时间升序）
// @Router /api/v1/incidences/{id}/timeline [get]
func (h *IncidenceHandler) GetTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	inc, err := h.incidenceService.FindByID(ctx, id)
	if err != nil {
		writeServiceError(c, h.logger, "get timeline", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}

	events, err := h.incidenceService.GetTimeline(ctx, id)
	if err != nil {
		writeServiceError(c, h.logger, "get timeline", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incidence_id": id,
		"events":       events,
		"total":        len(events),
	})
}

// AppendTimeline 追加时间线事件
// @Router /api/v1/incidences/{id}/timeline [post]
func (h *IncidenceHandler) AppendTimeline(c *gin.Context) {
	var req services.TimelineAppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.incidenceService.AppendTimeline(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeServiceError(c, h.logger, "append timeline", err)
		return
	}
	if event == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GetByConversation 按聊天会话查找
// @Router /api/v1/incidences/conversation/{conversation_id} [get]
func (h *IncidenceHandler) GetByConversation(c *gin.Context) {
	inc, err := h.incidenceService.FindByConversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeServiceError(c, h.logger, "get incidence", err)
		return
	}
	if inc == nil {
		notFound(c, "Incidence")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// ListByUser 用户最近的 Incidence
// @Router /api/v1/incidences/user/{user_id} [get]
func (h *IncidenceHandler) ListByUser(c *gin.Context) {
	userID := c.Param("user_id")
	list, err := h.incidenceService.ListByUser(c.Request.Context(), userID, 20)
	if err != nil {
		writeServiceError(c, h.logger, "list incidences", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"incidences": list,
		"total":      len(list),
	})
}
