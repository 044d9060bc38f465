package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/service"
)

type lotView struct {
	Lot      models.LotSummary `json:"lot"`
	Bookable bool              `json:"bookable"`
}

// ListLots 带可用车位数的停车场列表，支持 q 参数搜索
// 后端不可达时回退到最近一次的本地快照（标记 stale）
func (h *Handler) ListLots(c *gin.Context) {
	lots, err := h.availability.ListLots(c.Request.Context())
	if err != nil {
		if !errors.Is(err, parkez.ErrUnauthorized) {
			if cached, cerr := h.availability.LatestSnapshot(c.Request.Context()); cerr == nil && len(cached) > 0 {
				h.logger.Warn("Serving stale lot snapshot", zap.Error(err))
				c.JSON(http.StatusOK, gin.H{
					"data":  h.lotViews(c, cached),
					"stale": true,
				})
				return
			}
		}
		h.logger.Error("Failed to list lots", zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.lotViews(c, lots)})
}

func (h *Handler) lotViews(c *gin.Context, lots []models.LotSummary) []lotView {
	if term := c.Query("q"); term != "" {
		lots = service.FilterLots(lots, term)
	}

	hasActive := false
	if user, ok := h.authService.Current(); ok {
		var err error
		hasActive, err = h.availability.HasActiveBooking(c.Request.Context(), user.ID)
		if err != nil {
			// 查不到预订记录时按可预订展示，提交时还会再校验一次
			h.logger.Warn("Failed to check active booking", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}

	views := make([]lotView, 0, len(lots))
	for _, lot := range lots {
		views = append(views, lotView{
			Lot:      lot,
			Bookable: service.CanBook(lot, hasActive),
		})
	}
	return views
}
