package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/repository"
)

// AvailabilityService 停车场可用性视图
type AvailabilityService struct {
	logger   *zap.Logger
	client   *parkez.Client
	snapshot *repository.LotSnapshotRepository
}

// NewAvailabilityService 创建可用性服务
func NewAvailabilityService(logger *zap.Logger, client *parkez.Client, snapshot *repository.LotSnapshotRepository) *AvailabilityService {
	return &AvailabilityService{
		logger:   logger,
		client:   client,
		snapshot: snapshot,
	}
}

// ListLots 加载全部停车场并逐场查询可用车位数
// 逐场请求是 N+1 扇出，小规模下可接受；单场查询失败按 0 可用处理，不中断整体加载。
func (s *AvailabilityService) ListLots(ctx context.Context) ([]models.LotSummary, error) {
	lots, err := s.client.ListLots(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.LotSummary, 0, len(lots))
	for _, lot := range lots {
		available := s.availableCount(ctx, lot.ID)
		summaries = append(summaries, models.LotSummary{
			ParkingLot:     lot,
			AvailableSpots: available,
			TotalSpots:     lot.NumberOfSpots,
			Level:          models.AvailabilityLevel(available),
		})
	}

	if s.snapshot != nil {
		if err := s.snapshot.Record(ctx, summaries); err != nil {
			s.logger.Warn("Failed to record lot snapshot", zap.Error(err))
		}
	}

	return summaries, nil
}

func (s *AvailabilityService) availableCount(ctx context.Context, lotID int64) int {
	spots, err := s.client.AvailableSpots(ctx, lotID)
	if err != nil {
		s.logger.Warn("Failed to load available spots", zap.Int64("lot_id", lotID), zap.Error(err))
		return 0
	}
	return len(spots)
}

// LatestSnapshot 后端不可用时回退到每个停车场的最新本地快照
func (s *AvailabilityService) LatestSnapshot(ctx context.Context) ([]models.LotSummary, error) {
	if s.snapshot == nil {
		return nil, nil
	}
	return s.snapshot.Latest(ctx)
}

// FilterLots 大小写不敏感的子串匹配：位置名、地址或邮编
// 空关键词返回全部
func FilterLots(lots []models.LotSummary, term string) []models.LotSummary {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return lots
	}

	filtered := make([]models.LotSummary, 0, len(lots))
	for _, lot := range lots {
		if strings.Contains(strings.ToLower(lot.PrimeLocationName), term) ||
			strings.Contains(strings.ToLower(lot.Address), term) ||
			strings.Contains(strings.ToLower(lot.Pincode), term) {
			filtered = append(filtered, lot)
		}
	}
	return filtered
}

// CanBook 预订资格：有可用车位且用户当前没有进行中的预订
func CanBook(lot models.LotSummary, hasActiveBooking bool) bool {
	return lot.AvailableSpots > 0 && !hasActiveBooking
}

// UserBookings 用户预订历史，按创建时间倒序
func (s *AvailabilityService) UserBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	bookings, err := s.client.UserBookings(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings, nil
}

// HasActiveBooking 用户是否有进行中的预订
func (s *AvailabilityService) HasActiveBooking(ctx context.Context, userID int64) (bool, error) {
	bookings, err := s.client.UserBookings(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, b := range bookings {
		if b.IsActive() {
			return true, nil
		}
	}
	return false, nil
}
