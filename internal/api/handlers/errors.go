package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkez/parkez-agent/internal/api/parkez"
)

// respondUpstreamError 把后端错误映射为对前端的响应
// 401 统一回 session expired，由前端跳转登录页
func (h *Handler) respondUpstreamError(c *gin.Context, err error) {
	var apiErr *parkez.APIError

	switch {
	case errors.Is(err, parkez.ErrUnauthorized):
		h.authService.Expire()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
	case errors.Is(err, parkez.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &apiErr):
		c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Message})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Network error occurred. Please try again."})
	}
}
