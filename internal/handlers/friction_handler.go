package handlers

import (
	"net/http"
	"strconv"

	"supportdesk/internal/metrics"
	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
)

// FrictionHandler 摩擦评分处理器
type FrictionHandler struct {
	scorer *services.FrictionScorer
}

// NewFrictionHandler 创建摩擦评分处理器
func NewFrictionHandler(scorer *services.FrictionScorer) *FrictionHandler {
	return &FrictionHandler{scorer: scorer}
}

// Detect 根据行为信号计算摩擦分数
// @Summary 摩擦检测
// @Tags Friction
// @Accept json
// @Produce json
// @Param body body services.FrictionSignals true "行为信号"
// @Success 200 {object} services.FrictionResult
// @Router /api/v1/friction/detect [post]
func (h *FrictionHandler) Detect(c *gin.Context) {
	var sig services.FrictionSignals
	if err := c.ShouldBindJSON(&sig); err != nil {
		badRequest(c, err)
		return
	}

	result := h.scorer.Score(sig)
	metrics.ObserveFrictionScore(result.Score)
	c.JSON(http.StatusOK, result)
}

// Thresholds 当前权重与阈值
// @Router /api/v1/friction/thresholds [get]
func (h *FrictionHandler) Thresholds(c *gin.Context) {
	cfg := h.scorer.Config()
	c.JSON(http.StatusOK, gin.H{
		"weights":                cfg.Weights,
		"thresholds":             cfg.Thresholds,
		"help_threshold":         cfg.HelpThreshold,
		"max_score":              cfg.MaxScore,
		"high_value_event_types": cfg.HighValueEventTypes,
	})
}

// Interpret 解读分数等级
// @Router /api/v1/friction/interpret/{score} [get]
func (h *FrictionHandler) Interpret(c *gin.Context) {
	score, err := strconv.Atoi(c.Param("score"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid score",
			Message: "score must be an integer",
		})
		return
	}
	c.JSON(http.StatusOK, h.scorer.Interpret(score))
}
