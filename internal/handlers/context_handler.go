package handlers

import (
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ContextHandler 用户上下文与摩擦埋点处理器
type ContextHandler struct {
	contextService *services.ContextService
	scorer         *services.FrictionScorer
	logger         *logrus.Logger
}

// NewContextHandler 创建上下文处理器
func NewContextHandler(contextService *services.ContextService, scorer *services.FrictionScorer, logger *logrus.Logger) *ContextHandler {
	return &ContextHandler{
		contextService: contextService,
		scorer:         scorer,
		logger:         logger,
	}
}

// UpdateContext 保存 App 上报的上下文
// @Summary 更新用户上下文
// @Tags Context
// @Accept json
// @Produce json
// @Param body body services.UserContext true "用户上下文"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/context/update [post]
func (h *ContextHandler) UpdateContext(c *gin.Context) {
	var uc services.UserContext
	if err := c.ShouldBindJSON(&uc); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.contextService.Update(c.Request.Context(), &uc); err != nil {
		writeServiceError(c, h.logger, "update context", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Context updated",
		Data: gin.H{
			"user_id":     uc.UserID,
			"ttl_seconds": int(h.contextService.TTL().Seconds()),
		},
	})
}

// GetContext 坐席查看用户上下文，附带按上下文计算的摩擦分数
// @Router /api/v1/context/{user_id} [get]
func (h *ContextHandler) GetContext(c *gin.Context) {
	uc, err := h.contextService.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeServiceError(c, h.logger, "get context", err)
		return
	}
	if uc == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Context not found",
			Message: "no context for this user or it has expired",
		})
		return
	}

	resp := gin.H{"context": uc}
	if h.scorer != nil {
		resp["friction"] = h.scorer.Score(services.SignalsFromContext(uc))
	}
	c.JSON(http.StatusOK, resp)
}

// LogFrictionSignal 记录一条摩擦埋点
// @Router /api/v1/context/friction-signal [post]
func (h *ContextHandler) LogFrictionSignal(c *gin.Context) {
	var req services.FrictionSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sig, err := h.contextService.LogSignal(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, h.logger, "log friction signal", err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}
