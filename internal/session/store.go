package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/models"
)

// Store 会话存储
// 单一用户会话持久化到固定路径的 JSON 文件，跨进程重启保留。
// 写入方仅限登录/登出/401 处理，其余组件只读。
type Store struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
	user   *models.User
}

// NewStore 创建会话存储并尝试加载已有会话
// 文件不存在视为未登录；文件损坏同样视为未登录，并删除损坏的文件。
func NewStore(path string, logger *zap.Logger) *Store {
	s := &Store{path: path, logger: logger}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		// 损坏的会话等同于没有会话，丢弃存储的内容
		s.logger.Warn("Discarding corrupt session file", zap.String("path", s.path), zap.Error(err))
		os.Remove(s.path)
		return
	}
	s.user = &user
}

// Get 获取当前会话用户
func (s *Store) Get() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil, false
	}
	userCopy := *s.user
	return &userCopy, true
}

// Token 实现 parkez.TokenProvider
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil || s.user.Token == "" {
		return "", false
	}
	return s.user.Token, true
}

// Set 写入会话并持久化
func (s *Store) Set(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	userCopy := *user
	s.user = &userCopy
	return nil
}

// Clear 清除会话（登出或 token 失效）
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
