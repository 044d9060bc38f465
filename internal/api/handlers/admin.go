package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/service"
)

type lotPayload struct {
	PrimeLocationName string  `json:"prime_location_name"`
	Address           string  `json:"address"`
	Pincode           string  `json:"pincode"`
	Price             float64 `json:"price"`
	NumberOfSpots     int     `json:"number_of_spots"`
}

// requireAdmin 管理端路由的角色校验
func (h *Handler) requireAdmin(c *gin.Context) bool {
	user, ok := h.authService.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return false
	}
	if !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return false
	}
	return true
}

// AdminListLots 管理端停车场列表，支持按字段搜索
// 每次全量加载前跑一轮车位对账
func (h *Handler) AdminListLots(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	field := c.DefaultQuery("field", service.SearchAll)
	term := c.Query("q")

	if field == service.SearchAll && term == "" {
		if report, err := h.admin.ReconcileSpots(c.Request.Context()); err != nil {
			h.logger.Warn("Spot reconciliation failed", zap.Error(err))
		} else if report.SpotsCreated > 0 || report.Failures > 0 {
			h.logger.Info("Spot reconciliation finished",
				zap.Int("created", report.SpotsCreated),
				zap.Int("failures", report.Failures))
		}
	}

	lots, err := h.availability.ListLots(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list lots", zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	if term != "" || field != service.SearchAll {
		plain := make([]models.ParkingLot, 0, len(lots))
		for _, lot := range lots {
			plain = append(plain, lot.ParkingLot)
		}
		matched := make(map[int64]bool)
		for _, lot := range service.SearchLotsByField(plain, field, term) {
			matched[lot.ID] = true
		}
		filtered := lots[:0]
		for _, lot := range lots {
			if matched[lot.ID] {
				filtered = append(filtered, lot)
			}
		}
		lots = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": lots})
}

// CreateLot 创建停车场
func (h *Handler) CreateLot(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var payload lotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.admin.CreateLot(c.Request.Context(), parkez.LotRequest{
		PrimeLocationName: payload.PrimeLocationName,
		Address:           payload.Address,
		Pincode:           payload.Pincode,
		Price:             payload.Price,
		NumberOfSpots:     payload.NumberOfSpots,
	})
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "lot created"})
}

// UpdateLot 更新停车场
func (h *Handler) UpdateLot(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	var payload lotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err = h.admin.UpdateLot(c.Request.Context(), id, parkez.LotRequest{
		PrimeLocationName: payload.PrimeLocationName,
		Address:           payload.Address,
		Pincode:           payload.Pincode,
		Price:             payload.Price,
		NumberOfSpots:     payload.NumberOfSpots,
	})
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "lot updated"})
}

// DeleteLot 删除停车场
func (h *Handler) DeleteLot(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	if err := h.admin.DeleteLot(c.Request.Context(), id); err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "lot deleted"})
}

// ReconcileSpots 手动触发车位对账
func (h *Handler) ReconcileSpots(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	report, err := h.admin.ReconcileSpots(c.Request.Context())
	if err != nil {
		h.logger.Error("Spot reconciliation failed", zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// DeleteSpot 删除车位
func (h *Handler) DeleteSpot(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	if err := h.admin.DeleteSpot(c.Request.Context(), id); err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "spot deleted"})
}

// SpotDetails 车位详情，占用中的车位附带预订记录
func (h *Handler) SpotDetails(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	details, err := h.admin.SpotDetails(c.Request.Context(), id)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

// AdminSummary 管理端汇总报表
func (h *Handler) AdminSummary(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	summary, err := h.admin.Summary(c.Request.Context())
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// RegisteredUsers 注册用户列表
func (h *Handler) RegisteredUsers(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	users, err := h.admin.RegisteredUsers(c.Request.Context())
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
