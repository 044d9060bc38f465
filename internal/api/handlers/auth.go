package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/service"
)

type loginPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	Address         string `json:"address"`
	Age             int    `json:"age"`
}

// Login 登录
func (h *Handler) Login(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.authService.Login(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		h.logger.Warn("Login failed", zap.String("email", payload.Email), zap.Error(err))
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// Logout 登出
func (h *Handler) Logout(c *gin.Context) {
	if err := h.authService.Logout(); err != nil {
		h.logger.Error("Failed to clear session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Register 注册新用户
func (h *Handler) Register(c *gin.Context) {
	var payload registerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.authService.Register(c.Request.Context(), parkez.RegisterRequest{
		Email:       payload.Email,
		Password:    payload.Password,
		FullName:    payload.FullName,
		PhoneNumber: payload.PhoneNumber,
		Address:     payload.Address,
		Age:         payload.Age,
	}, payload.ConfirmPassword)
	if err != nil {
		if errors.Is(err, service.ErrFieldsRequired) ||
			errors.Is(err, service.ErrPasswordMismatch) ||
			errors.Is(err, service.ErrUnderage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.respondUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registration successful"})
}

// CurrentSession 当前会话
func (h *Handler) CurrentSession(c *gin.Context) {
	user, ok := h.authService.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// GetProfile 拉取资料
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.authService.Profile(c.Request.Context())
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// UpdateProfile 更新资料
func (h *Handler) UpdateProfile(c *gin.Context) {
	var update parkez.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.authService.UpdateProfile(c.Request.Context(), update); err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated"})
}

// UserSummary 用户月度汇总
func (h *Handler) UserSummary(c *gin.Context) {
	period := c.DefaultQuery("period", "month")
	summary, err := h.authService.Summary(c.Request.Context(), period)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}
