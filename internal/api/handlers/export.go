package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/service"
)

// StartExport 发起历史导出，同一时刻只允许一个任务
func (h *Handler) StartExport(c *gin.Context) {
	task, err := h.exports.Start(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExportInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "an export is already in progress"})
		case errors.Is(err, service.ErrNoSession):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		default:
			h.logger.Error("Failed to start export", zap.Error(err))
			h.respondUpstreamError(c, err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"file":    service.ExportFileName,
	})
}

// ExportState 导出流程状态快照
func (h *Handler) ExportState(c *gin.Context) {
	flowState, message := h.exports.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
	})
}

// CancelExport 取消进行中的导出轮询
func (h *Handler) CancelExport(c *gin.Context) {
	h.exports.CancelCurrent()
	c.JSON(http.StatusOK, gin.H{"message": "export cancelled"})
}
