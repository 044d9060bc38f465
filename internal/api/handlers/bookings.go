package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/service"
)

type startBookingPayload struct {
	LotID int64 `json:"lot_id"`
}

type submitBookingPayload struct {
	VehicleNumber string `json:"vehicle_number"`
}

// ListBookings 当前用户的预订列表，最新在前
func (h *Handler) ListBookings(c *gin.Context) {
	user, ok := h.authService.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	bookings, err := h.availability.UserBookings(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list bookings", zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	type bookingView struct {
		models.Booking
		StatusName string `json:"status_name"`
	}
	views := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, bookingView{Booking: b, StatusName: b.StatusName()})
	}

	c.JSON(http.StatusOK, gin.H{"data": views})
}

// BookingHistory 本地镜像的预订历史，后端不可用时仍可读
func (h *Handler) BookingHistory(c *gin.Context) {
	user, ok := h.authService.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	records, err := h.historyRepo.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to read booking history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read booking history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

// StartBookingFlow 启动预订流程并预取车位
func (h *Handler) StartBookingFlow(c *gin.Context) {
	var payload startBookingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.bookingFlow.Start(c.Request.Context(), payload.LotID); err != nil {
		h.logger.Warn("Booking flow start failed",
			zap.Int64("lot_id", payload.LotID), zap.Error(err))
	}

	flowState, message, spot := h.bookingFlow.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
		"spot":    spot,
	})
}

// SubmitBooking 确认预订
func (h *Handler) SubmitBooking(c *gin.Context) {
	var payload submitBookingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.bookingFlow.Submit(c.Request.Context(), payload.VehicleNumber)
	if err != nil && errors.Is(err, service.ErrNotReady) {
		c.JSON(http.StatusConflict, gin.H{"error": "booking flow is not ready to submit"})
		return
	}

	flowState, message, spot := h.bookingFlow.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
		"spot":    spot,
	})
}

// BookingFlowState 预订流程状态快照
func (h *Handler) BookingFlowState(c *gin.Context) {
	flowState, message, spot := h.bookingFlow.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
		"spot":    spot,
	})
}

// LoadRelease 加载释放确认页数据
func (h *Handler) LoadRelease(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	preview, err := h.releaseFlow.Load(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("Release load failed", zap.Int64("booking_id", id), zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": preview})
}

// ReleasePreview 当前确认页数据
func (h *Handler) ReleasePreview(c *gin.Context) {
	preview := h.releaseFlow.Preview()
	if preview == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no release in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": preview})
}

// ConfirmRelease 确认释放，重复提交为空操作
func (h *Handler) ConfirmRelease(c *gin.Context) {
	if err := h.releaseFlow.Release(c.Request.Context()); err != nil {
		h.logger.Warn("Release failed", zap.Error(err))
	}

	flowState, message := h.releaseFlow.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
	})
}

// ReleaseFlowState 释放流程状态快照
func (h *Handler) ReleaseFlowState(c *gin.Context) {
	flowState, message := h.releaseFlow.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   flowState,
		"message": message,
	})
}
