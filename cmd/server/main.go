package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parkez/parkez-agent/internal/api/handlers"
	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/config"
	"github.com/parkez/parkez-agent/internal/repository"
	"github.com/parkez/parkez-agent/internal/service"
	"github.com/parkez/parkez-agent/internal/session"
	"github.com/parkez/parkez-agent/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting ParkEZ agent", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	snapshotRepo := repository.NewLotSnapshotRepository(db)
	historyRepo := repository.NewBookingHistoryRepository(db)

	// 加载本地会话（如果存在）
	sessions := session.NewStore(cfg.SessionFile, logger)
	if user, ok := sessions.Get(); ok {
		logger.Info("Restored session", zap.String("email", user.Email))
	}

	// 创建 ParkEZ API 客户端
	client := parkez.NewClient(cfg.ParkEZAPIHost, sessions)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)

	// 创建业务服务
	authService := service.NewAuthService(logger, client, sessions)
	availability := service.NewAvailabilityService(logger, client, snapshotRepo)
	bookingFlow := service.NewBookingService(
		logger, client, sessions, availability, historyRepo, wsHub,
		cfg.BookingRedirectDelay,
	)
	releaseFlow := service.NewReleaseService(
		logger, client, sessions, historyRepo, wsHub,
		cfg.ReleaseRedirectDelay,
	)
	exports := service.NewExportService(
		logger, client, sessions, wsHub,
		cfg.ExportPollInterval, cfg.DownloadDir,
	)
	admin := service.NewAdminService(logger, client, sessions)

	// 新连接先收到会话和各流程的当前状态
	wsHub.SetInitDataProvider(func() *ws.InitData {
		user, _ := sessions.Get()
		bookingState, bookingMsg, _ := bookingFlow.State()
		releaseState, releaseMsg := releaseFlow.State()
		exportState, exportMsg := exports.State()
		return &ws.InitData{
			User: user,
			Flows: map[string]interface{}{
				"booking": map[string]string{"state": bookingState, "message": bookingMsg},
				"release": map[string]string{"state": releaseState, "message": releaseMsg},
				"export":  map[string]string{"state": exportState, "message": exportMsg},
			},
		}
	})
	go wsHub.Run()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		authService,
		availability,
		bookingFlow,
		releaseFlow,
		exports,
		admin,
		historyRepo,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止后台任务
	exports.Stop()
	bookingFlow.Stop()
	releaseFlow.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
