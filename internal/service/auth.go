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

const minRegisterAge = 18

// 注册校验错误
var (
	ErrFieldsRequired   = errors.New("all required fields must be filled")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrUnderage         = errors.New("you must be at least 18 years old")
)

// AuthService 登录注册与本地会话管理
type AuthService struct {
	logger   *zap.Logger
	client   *parkez.Client
	sessions *session.Store
}

// NewAuthService 创建认证服务
func NewAuthService(logger *zap.Logger, client *parkez.Client, sessions *session.Store) *AuthService {
	return &AuthService{
		logger:   logger,
		client:   client,
		sessions: sessions,
	}
}

// Login 调后端登录并持久化会话
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.client.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Set(user); err != nil {
		s.logger.Warn("Failed to persist session", zap.Error(err))
	}

	s.logger.Info("User logged in",
		zap.String("email", user.Email), zap.String("role", user.Role))
	return user, nil
}

// Register 先本地校验再调后端注册，注册成功不自动登录
func (s *AuthService) Register(ctx context.Context, req parkez.RegisterRequest, confirmPassword string) error {
	if err := validateRegistration(req, confirmPassword); err != nil {
		return err
	}
	return s.client.Register(ctx, req)
}

// Logout 清除本地会话，后端无登出接口
func (s *AuthService) Logout() error {
	user, ok := s.sessions.Get()
	if ok {
		s.logger.Info("User logged out", zap.String("email", user.Email))
	}
	return s.sessions.Clear()
}

// Expire 后端判定 token 失效时静默清除本地会话
func (s *AuthService) Expire() {
	if _, ok := s.sessions.Get(); ok {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}

// Current 当前会话用户
func (s *AuthService) Current() (*models.User, bool) {
	return s.sessions.Get()
}

// Profile 拉取远端资料并刷新本地会话中的展示字段
func (s *AuthService) Profile(ctx context.Context) (*models.User, error) {
	cached, ok := s.sessions.Get()
	if !ok {
		return nil, ErrNoSession
	}

	user, err := s.client.FetchProfile(ctx, cached.ID)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}

	cached.FullName = user.FullName
	cached.PhoneNumber = user.PhoneNumber
	cached.VehicleNumber = user.VehicleNumber
	cached.Address = user.Address
	cached.Age = user.Age
	if err := s.sessions.Set(cached); err != nil {
		s.logger.Warn("Failed to refresh cached session", zap.Error(err))
	}
	return user, nil
}

// UpdateProfile 更新远端资料
func (s *AuthService) UpdateProfile(ctx context.Context, update parkez.ProfileUpdate) error {
	cached, ok := s.sessions.Get()
	if !ok {
		return ErrNoSession
	}

	if err := s.client.UpdateProfile(ctx, cached.ID, update); err != nil {
		s.handleAuthFailure(err)
		return err
	}
	return nil
}

// Summary 用户周期汇总
func (s *AuthService) Summary(ctx context.Context, period string) (*models.UserSummary, error) {
	cached, ok := s.sessions.Get()
	if !ok {
		return nil, ErrNoSession
	}

	summary, err := s.client.UserSummary(ctx, cached.ID, period)
	if err != nil {
		s.handleAuthFailure(err)
		return nil, err
	}
	return summary, nil
}

func validateRegistration(req parkez.RegisterRequest, confirmPassword string) error {
	if strings.TrimSpace(req.Email) == "" ||
		req.Password == "" ||
		strings.TrimSpace(req.FullName) == "" {
		return ErrFieldsRequired
	}
	if req.Password != confirmPassword {
		return ErrPasswordMismatch
	}
	if req.Age < minRegisterAge {
		return ErrUnderage
	}
	return nil
}

func (s *AuthService) handleAuthFailure(err error) {
	if errors.Is(err, parkez.ErrUnauthorized) {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}
