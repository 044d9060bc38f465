package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/repository"
	"github.com/parkez/parkez-agent/internal/session"
	"github.com/parkez/parkez-agent/internal/state"
	"github.com/parkez/parkez-agent/pkg/ws"
)

// 面向用户的固定提示语
const (
	MsgNoLotID          = "No lot ID provided. Please select a parking lot from the dashboard."
	MsgNetworkError     = "Network error occurred. Please try again."
	MsgVehicleRequired  = "Vehicle number is required"
	MsgAlreadyBooked    = "You already have a spot currently booked. Please release it before booking another."
	MsgNoSpotsAvailable = "No available spots found for this location."
	MsgBookingSuccess   = "Parking spot booking successful!"
)

var (
	// ErrNoSession 当前没有已登录会话
	ErrNoSession = errors.New("no active session")
	// ErrNotReady 流程状态不允许该操作
	ErrNotReady = errors.New("flow not ready")
)

// FlowNotifier 流程状态对外广播
type FlowNotifier interface {
	BroadcastFlowUpdate(update ws.FlowUpdate)
}

// BookingService 预订流程
// 同一时刻只有一次预订尝试；Start 开启新尝试并覆盖旧状态。
type BookingService struct {
	logger       *zap.Logger
	client       *parkez.Client
	sessions     *session.Store
	availability *AvailabilityService
	history      *repository.BookingHistoryRepository
	notifier     FlowNotifier
	redirectWait time.Duration

	mu            sync.Mutex
	flow          *state.Flow
	lot           *models.ParkingLot
	assignedSpot  *models.ParkingSpot
	redirectTimer *time.Timer
}

// NewBookingService 创建预订服务
func NewBookingService(
	logger *zap.Logger,
	client *parkez.Client,
	sessions *session.Store,
	availability *AvailabilityService,
	history *repository.BookingHistoryRepository,
	notifier FlowNotifier,
	redirectWait time.Duration,
) *BookingService {
	return &BookingService{
		logger:       logger,
		client:       client,
		sessions:     sessions,
		availability: availability,
		history:      history,
		notifier:     notifier,
		redirectWait: redirectWait,
	}
}

func (s *BookingService) onFlowChange(flow, from, to, message string) {
	if s.notifier != nil {
		s.notifier.BroadcastFlowUpdate(ws.FlowUpdate{
			Flow:    flow,
			From:    from,
			State:   to,
			Message: message,
		})
	}
}

// Start 开启一次预订尝试并加载停车场与首个可用车位
// lotID <= 0 视为入口缺少 lot id，进入终态 errored。
func (s *BookingService) Start(ctx context.Context, lotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 上一次成功预订遗留的跳转不允许打断新流程
	if s.redirectTimer != nil {
		s.redirectTimer.Stop()
		s.redirectTimer = nil
	}

	s.flow = state.NewBookingFlow(s.onFlowChange)
	s.lot = nil
	s.assignedSpot = nil

	if lotID <= 0 {
		s.flow.Trigger(state.EventAbort, MsgNoLotID)
		return fmt.Errorf("no lot id provided")
	}

	if _, ok := s.sessions.Get(); !ok {
		s.flow.Trigger(state.EventAbort, "Please log in to book a spot.")
		return ErrNoSession
	}

	if err := s.flow.Trigger(state.EventLoad, ""); err != nil {
		return err
	}

	lot, err := s.client.GetLot(ctx, lotID)
	if err != nil {
		s.handleAuthFailure(err)
		s.flow.Trigger(state.EventFail, userMessage(err))
		return err
	}
	s.lot = lot

	spots, err := s.client.AvailableSpots(ctx, lotID)
	if err != nil {
		s.handleAuthFailure(err)
		s.flow.Trigger(state.EventFail, userMessage(err))
		return err
	}

	if len(spots) == 0 {
		return s.flow.Trigger(state.EventExhaust, MsgNoSpotsAvailable)
	}

	// 自动分配第一个可用车位（按服务端返回顺序，确定性分配）
	s.assignedSpot = &spots[0]
	s.logger.Info("Spot assigned",
		zap.Int64("lot_id", lotID),
		zap.Int64("spot_id", s.assignedSpot.ID))
	return s.flow.Trigger(state.EventAssign, "")
}

// Submit 提交预订
// 资格校验（已有进行中的预订）与车牌号校验都发生在任何网络请求之前。
func (s *BookingService) Submit(ctx context.Context, vehicleNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil || !s.flow.Can(state.EventSubmit) || s.assignedSpot == nil {
		return ErrNotReady
	}

	user, ok := s.sessions.Get()
	if !ok {
		return ErrNoSession
	}

	vehicleNumber = strings.TrimSpace(vehicleNumber)
	if vehicleNumber == "" {
		return errors.New(MsgVehicleRequired)
	}

	hasActive, err := s.availability.HasActiveBooking(ctx, user.ID)
	if err != nil {
		s.handleAuthFailure(err)
		return err
	}
	if hasActive {
		return errors.New(MsgAlreadyBooked)
	}

	if err := s.flow.Trigger(state.EventSubmit, ""); err != nil {
		return err
	}

	booking, err := s.client.CreateBooking(ctx, parkez.BookingRequest{
		SpotID:        s.assignedSpot.ID,
		LotID:         s.lot.ID,
		UserID:        user.ID,
		VehicleNumber: vehicleNumber,
	})
	if err != nil {
		s.handleAuthFailure(err)
		s.flow.Trigger(state.EventFail, userMessage(err))
		return err
	}

	if s.history != nil {
		if err := s.history.Upsert(ctx, booking); err != nil {
			s.logger.Warn("Failed to mirror booking", zap.Error(err))
		}
	}

	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("spot_id", booking.SpotID))

	if err := s.flow.Trigger(state.EventSucceed, MsgBookingSuccess); err != nil {
		return err
	}

	// 成功消息展示片刻后再跳转回用户面板
	s.redirectTimer = time.AfterFunc(s.redirectWait, func() {
		if s.notifier != nil {
			s.notifier.BroadcastFlowUpdate(ws.FlowUpdate{
				Flow:       "booking",
				State:      state.BookingSuccess,
				Message:    MsgBookingSuccess,
				NavigateTo: "/customer",
			})
		}
	})

	return nil
}

// State 当前流程状态快照
func (s *BookingService) State() (flowState, message string, spot *models.ParkingSpot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil {
		return state.BookingIdle, "", nil
	}
	return s.flow.Current(), s.flow.Message(), s.assignedSpot
}

// Stop 释放延迟跳转计时器
func (s *BookingService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirectTimer != nil {
		s.redirectTimer.Stop()
		s.redirectTimer = nil
	}
}

// handleAuthFailure 收到 401 即清除会话
func (s *BookingService) handleAuthFailure(err error) {
	if errors.Is(err, parkez.ErrUnauthorized) {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}

// userMessage 把错误转换为展示给用户的消息
// 后端业务错误使用响应体里的消息，其余一律按网络错误处理。
func userMessage(err error) string {
	var apiErr *parkez.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, parkez.ErrUnauthorized) {
		return "Session expired. Please log in again."
	}
	return MsgNetworkError
}
