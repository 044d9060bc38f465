package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/repository"
	"github.com/parkez/parkez-agent/internal/service"
	"github.com/parkez/parkez-agent/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger       *zap.Logger
	authService  *service.AuthService
	availability *service.AvailabilityService
	bookingFlow  *service.BookingService
	releaseFlow  *service.ReleaseService
	exports      *service.ExportService
	admin        *service.AdminService
	historyRepo  *repository.BookingHistoryRepository
	wsHub        *ws.Hub
	upgrader     websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	authService *service.AuthService,
	availability *service.AvailabilityService,
	bookingFlow *service.BookingService,
	releaseFlow *service.ReleaseService,
	exports *service.ExportService,
	admin *service.AdminService,
	historyRepo *repository.BookingHistoryRepository,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:       logger,
		authService:  authService,
		availability: availability,
		bookingFlow:  bookingFlow,
		releaseFlow:  releaseFlow,
		exports:      exports,
		admin:        admin,
		historyRepo:  historyRepo,
		wsHub:        wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 会话
		api.POST("/session/login", h.Login)
		api.POST("/session/logout", h.Logout)
		api.POST("/session/register", h.Register)
		api.GET("/session", h.CurrentSession)
		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.UpdateProfile)
		api.GET("/summary", h.UserSummary)

		// 停车场
		api.GET("/lots", h.ListLots)

		// 预订
		api.GET("/bookings", h.ListBookings)
		api.GET("/bookings/history", h.BookingHistory)
		api.POST("/bookings/flow/start", h.StartBookingFlow)
		api.POST("/bookings/flow/submit", h.SubmitBooking)
		api.GET("/bookings/flow", h.BookingFlowState)
		api.POST("/bookings/:id/release/load", h.LoadRelease)
		api.GET("/bookings/release/preview", h.ReleasePreview)
		api.POST("/bookings/release/confirm", h.ConfirmRelease)
		api.GET("/bookings/release/flow", h.ReleaseFlowState)

		// 导出
		api.POST("/export", h.StartExport)
		api.GET("/export", h.ExportState)
		api.DELETE("/export", h.CancelExport)

		// 管理端
		admin := api.Group("/admin")
		{
			admin.GET("/lots", h.AdminListLots)
			admin.POST("/lots", h.CreateLot)
			admin.PUT("/lots/:id", h.UpdateLot)
			admin.DELETE("/lots/:id", h.DeleteLot)
			admin.POST("/reconcile", h.ReconcileSpots)
			admin.GET("/spots/:id", h.SpotDetails)
			admin.DELETE("/spots/:id", h.DeleteSpot)
			admin.GET("/summary", h.AdminSummary)
			admin.GET("/users", h.RegisteredUsers)
		}
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
