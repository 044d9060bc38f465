package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
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

const (
	// MsgReleaseSuccess 释放成功提示
	MsgReleaseSuccess = "Parking spot released successfully! Redirecting..."
	// MsgReleaseFailed 释放失败兜底提示
	MsgReleaseFailed = "Failed to release parking spot"
)

// 费用字段只保留数字和小数点
var nonNumericPattern = regexp.MustCompile(`[^\d.]`)

// ReleasePreview 释放确认页数据
type ReleasePreview struct {
	BookingID     int64   `json:"booking_id"`
	SpotID        int64   `json:"spot_id"`
	VehicleNumber string  `json:"vehicle_number"`
	ParkedAt      string  `json:"parked_at"`
	ParkingTime   string  `json:"parking_time"`
	ReleasingTime string  `json:"releasing_time"`
	TotalCost     string  `json:"total_cost"`
	HourlyPrice   float64 `json:"hourly_price"`
}

// ReleaseService 释放流程
type ReleaseService struct {
	logger       *zap.Logger
	client       *parkez.Client
	sessions     *session.Store
	history      *repository.BookingHistoryRepository
	notifier     FlowNotifier
	redirectWait time.Duration
	now          func() time.Time

	mu            sync.Mutex
	flow          *state.Flow
	booking       *models.Booking
	preview       *ReleasePreview
	redirectTimer *time.Timer
}

// NewReleaseService 创建释放服务
func NewReleaseService(
	logger *zap.Logger,
	client *parkez.Client,
	sessions *session.Store,
	history *repository.BookingHistoryRepository,
	notifier FlowNotifier,
	redirectWait time.Duration,
) *ReleaseService {
	return &ReleaseService{
		logger:       logger,
		client:       client,
		sessions:     sessions,
		history:      history,
		notifier:     notifier,
		redirectWait: redirectWait,
		now:          time.Now,
	}
}

func (s *ReleaseService) onFlowChange(flow, from, to, message string) {
	if s.notifier != nil {
		s.notifier.BroadcastFlowUpdate(ws.FlowUpdate{
			Flow:    flow,
			From:    from,
			State:   to,
			Message: message,
		})
	}
}

// Load 加载预订与停车场并计算费用
// 严格顺序：先预订，再停车场，再计费。停车场加载失败按价格 0 降级，
// 不阻塞释放（停车场元数据不是释放的前置条件）。
func (s *ReleaseService) Load(ctx context.Context, bookingID int64) (*ReleasePreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Get(); !ok {
		return nil, ErrNoSession
	}

	s.flow = state.NewReleaseFlow(s.onFlowChange)
	s.booking = nil
	s.preview = nil

	if err := s.flow.Trigger(state.EventLoad, ""); err != nil {
		return nil, err
	}

	booking, err := s.client.GetBooking(ctx, bookingID)
	if err != nil {
		s.handleAuthFailure(err)
		s.flow.Trigger(state.EventFail, "Failed to load booking details")
		return nil, err
	}
	s.booking = booking

	if err := s.flow.Trigger(state.EventLoaded, ""); err != nil {
		return nil, err
	}

	price := 0.0
	lot, err := s.client.GetLot(ctx, booking.LotID)
	if err != nil {
		s.handleAuthFailure(err)
		// 降级：价格按 0 继续
		s.logger.Warn("Failed to load lot, defaulting price to 0",
			zap.Int64("lot_id", booking.LotID), zap.Error(err))
	} else {
		price = lot.Price
	}

	now := s.now()
	hours := ElapsedHours(booking.CreatedAt, now)
	cost := float64(hours) * price

	s.preview = &ReleasePreview{
		BookingID:     booking.ID,
		SpotID:        booking.SpotID,
		VehicleNumber: booking.VehicleNumber,
		ParkedAt:      booking.CreatedAt.Format(time.RFC1123),
		ParkingTime:   fmt.Sprintf("%d hours", hours),
		ReleasingTime: now.Format(time.RFC1123),
		TotalCost:     FormatCost(cost),
		HourlyPrice:   price,
	}

	if err := s.flow.Trigger(state.EventPriced, ""); err != nil {
		return nil, err
	}

	preview := *s.preview
	return &preview, nil
}

// Release 提交释放
// 流程不在 ready/failed 时为 no-op（防止重复提交和成功后的再次提交）。
func (s *ReleaseService) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil || s.booking == nil || s.preview == nil || !s.flow.Can(state.EventRelease) {
		return ErrNotReady
	}

	if err := s.flow.Trigger(state.EventRelease, ""); err != nil {
		return err
	}

	releasedAt := s.now()
	err := s.client.ReleaseBooking(ctx, s.booking.ID, parkez.ReleaseRequest{
		Status:     models.BookingReleased,
		TotalCost:  nonNumericPattern.ReplaceAllString(s.preview.TotalCost, ""),
		ReleasedAt: releasedAt.Format(time.RFC3339),
	})
	if err != nil {
		s.handleAuthFailure(err)
		s.flow.Trigger(state.EventFail, userMessage(err))
		return err
	}

	if s.history != nil {
		mirrored := *s.booking
		mirrored.Status = models.BookingReleased
		mirrored.ReleasedAt = &releasedAt
		cost, parseErr := parseCost(s.preview.TotalCost)
		if parseErr == nil {
			mirrored.TotalCost = &cost
		}
		if err := s.history.Upsert(ctx, &mirrored); err != nil {
			s.logger.Warn("Failed to mirror released booking", zap.Error(err))
		}
	}

	s.logger.Info("Booking released",
		zap.Int64("booking_id", s.booking.ID),
		zap.String("total_cost", s.preview.TotalCost))

	if err := s.flow.Trigger(state.EventRedirect, MsgReleaseSuccess); err != nil {
		return err
	}

	// redirecting 子状态持续固定时长后跳转，期间不可取消
	s.redirectTimer = time.AfterFunc(s.redirectWait, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.flow == nil || !s.flow.Can(state.EventFinish) {
			return
		}
		s.flow.Trigger(state.EventFinish, "")
		if s.notifier != nil {
			// refresh 参数强制用户面板绕过缓存重新加载
			s.notifier.BroadcastFlowUpdate(ws.FlowUpdate{
				Flow:       "release",
				State:      state.ReleaseDone,
				NavigateTo: fmt.Sprintf("/customer?refresh=%d&from=release", s.now().UnixMilli()),
			})
		}
	})

	return nil
}

// State 当前流程状态快照
func (s *ReleaseService) State() (flowState, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil {
		return state.ReleaseIdle, ""
	}
	return s.flow.Current(), s.flow.Message()
}

// Preview 当前确认页数据，未加载时返回 nil
func (s *ReleaseService) Preview() *ReleasePreview {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preview == nil {
		return nil
	}
	preview := *s.preview
	return &preview
}

// Stop 释放延迟跳转计时器
func (s *ReleaseService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirectTimer != nil {
		s.redirectTimer.Stop()
		s.redirectTimer = nil
	}
}

func (s *ReleaseService) handleAuthFailure(err error) {
	if errors.Is(err, parkez.ErrUnauthorized) {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}

// ElapsedHours 停车时长按小时向上取整
// 不足一小时按一小时计，这是计费的硬性业务规则。
func ElapsedHours(createdAt, now time.Time) int {
	elapsed := now.Sub(createdAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Ceil(float64(elapsed.Milliseconds()) / 3_600_000))
}

// FormatCost 金额展示格式
func FormatCost(cost float64) string {
	return fmt.Sprintf("₹%.2f", cost)
}

func parseCost(display string) (float64, error) {
	var cost float64
	_, err := fmt.Sscanf(nonNumericPattern.ReplaceAllString(display, ""), "%f", &cost)
	return cost, err
}
