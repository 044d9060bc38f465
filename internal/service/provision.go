package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/session"
)

// 管理端搜索字段
const (
	SearchAll     = "all"
	SearchName    = "name"
	SearchAddress = "address"
	SearchPincode = "pincode"
)

// ReconcileReport 一次车位对账的结果
type ReconcileReport struct {
	LotsChecked  int `json:"lots_checked"`
	SpotsCreated int `json:"spots_created"`
	Failures     int `json:"failures"`
}

// AdminService 管理端：停车场 CRUD 与车位对账
type AdminService struct {
	logger   *zap.Logger
	client   *parkez.Client
	sessions *session.Store
}

// NewAdminService 创建管理服务
func NewAdminService(logger *zap.Logger, client *parkez.Client, sessions *session.Store) *AdminService {
	return &AdminService{
		logger:   logger,
		client:   client,
		sessions: sessions,
	}
}

// ReconcileSpots 让每个停车场的车位记录数与其声明容量一致
// 少了就顺序补建 Available 车位，单个创建失败只记录并继续，不回滚不重试；
// 多了不自动裁剪。在管理面板每次全量加载时执行一次，幂等。
func (s *AdminService) ReconcileSpots(ctx context.Context) (*ReconcileReport, error) {
	lots, err := s.client.ListLots(ctx)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}

	spots, err := s.client.ListSpots(ctx)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}

	countByLot := make(map[int64]int)
	for _, spot := range spots {
		countByLot[spot.LotID]++
	}

	report := &ReconcileReport{LotsChecked: len(lots)}
	for _, lot := range lots {
		current := countByLot[lot.ID]
		required := lot.NumberOfSpots
		if current >= required {
			continue
		}

		for i := current; i < required; i++ {
			err := s.client.CreateSpot(ctx, parkez.SpotRequest{
				LotID:  lot.ID,
				Status: models.SpotAvailable,
			})
			if err != nil {
				// 部分成功可接受，继续补建剩余车位
				s.logger.Warn("Failed to create spot",
					zap.Int64("lot_id", lot.ID), zap.Error(err))
				report.Failures++
				continue
			}
			report.SpotsCreated++
		}

		s.logger.Info("Reconciled lot spots",
			zap.Int64("lot_id", lot.ID),
			zap.Int("had", current),
			zap.Int("required", required))
	}

	return report, nil
}

// CreateLot 创建停车场，地址重复时后端返回 409 原样上抛
func (s *AdminService) CreateLot(ctx context.Context, req parkez.LotRequest) error {
	if err := s.client.CreateLot(ctx, req); err != nil {
		s.handleAuthFailure(err)
		return err
	}
	return nil
}

// UpdateLot 更新停车场
func (s *AdminService) UpdateLot(ctx context.Context, id int64, req parkez.LotRequest) error {
	if err := s.client.UpdateLot(ctx, id, req); err != nil {
		s.handleAuthFailure(err)
		return err
	}
	return nil
}

// DeleteLot 删除停车场，有占用车位时后端拒绝并上抛
func (s *AdminService) DeleteLot(ctx context.Context, id int64) error {
	if err := s.client.DeleteLot(ctx, id); err != nil {
		s.handleAuthFailure(err)
		return err
	}
	return nil
}

// DeleteSpot 删除单个车位（只允许删除可用车位，占用中后端拒绝）
func (s *AdminService) DeleteSpot(ctx context.Context, id int64) error {
	if err := s.client.DeleteSpot(ctx, id); err != nil {
		s.handleAuthFailure(err)
		return err
	}
	return nil
}

// Summary 管理端汇总报表
func (s *AdminService) Summary(ctx context.Context) (*models.AdminSummary, error) {
	summary, err := s.client.AdminSummary(ctx)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}
	return summary, nil
}

// RegisteredUsers 注册用户列表
func (s *AdminService) RegisteredUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.client.RegisteredUsers(ctx)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}
	return users, nil
}

// SpotDetails 车位详情。空闲车位没有占用记录，详情接口会 404，
// 此时退回基础车位信息。
func (s *AdminService) SpotDetails(ctx context.Context, id int64) (*models.SpotDetails, error) {
	details, err := s.client.SpotDetails(ctx, id)
	if err == nil {
		return details, nil
	}
	if errors.Is(err, parkez.ErrNotFound) {
		spot, serr := s.client.GetSpot(ctx, id)
		if serr == nil {
			return &models.SpotDetails{ParkingSpot: *spot}, nil
		}
	}
	s.handleAuthFailure(err)
	return nil, err
}

// SearchLotsByField 管理端按字段搜索
// field 取 all/name/address/pincode；大小写不敏感子串匹配
func SearchLotsByField(lots []models.ParkingLot, field, term string) []models.ParkingLot {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" && field == SearchAll {
		return lots
	}

	filtered := make([]models.ParkingLot, 0, len(lots))
	for _, lot := range lots {
		var match bool
		switch field {
		case SearchName:
			match = strings.Contains(strings.ToLower(lot.PrimeLocationName), term)
		case SearchAddress:
			match = strings.Contains(strings.ToLower(lot.Address), term)
		case SearchPincode:
			match = strings.Contains(strings.ToLower(lot.Pincode), term)
		default:
			match = strings.Contains(strings.ToLower(lot.PrimeLocationName), term) ||
				strings.Contains(strings.ToLower(lot.Address), term) ||
				strings.Contains(strings.ToLower(lot.Pincode), term)
		}
		if match {
			filtered = append(filtered, lot)
		}
	}
	return filtered
}

func (s *AdminService) handleAuthFailure(err error) {
	if errors.Is(err, parkez.ErrUnauthorized) {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}
