package handlers

import (
	"errors"
	"net/http"

	"supportdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: err.Error(),
	})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   what + " not found",
		Message: what + " does not exist",
	})
}

// writeServiceError 把服务层哨兵错误映射为 HTTP 状态码，其余按 500 处理
func writeServiceError(c *gin.Context, logger *logrus.Logger, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrIncidenceAlreadyClosed),
		errors.Is(err, services.ErrIncidenceNotClosed):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidOutcome),
		errors.Is(err, services.ErrInvalidIncidence),
		errors.Is(err, services.ErrInvalidContext):
		status = http.StatusBadRequest
	default:
		logger.Errorf("Failed to %s: %v", action, err)
	}
	c.JSON(status, ErrorResponse{
		Error:   "Failed to " + action,
		Message: err.Error(),
		Code:    status,
	})
}

func pageCount(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
