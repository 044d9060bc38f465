package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/session"
	"github.com/parkez/parkez-agent/internal/state"
	"github.com/parkez/parkez-agent/pkg/ws"
)

const (
	// ExportFileName 下载文件名
	ExportFileName = "my_parking_history.csv"

	// MsgExportPreparing 导出开始提示
	MsgExportPreparing = "Preparing your CSV export..."
	// MsgExportDone 导出完成提示
	MsgExportDone = "CSV file has been downloaded!"
	// MsgExportFailed 导出失败提示
	MsgExportFailed = "Failed to download CSV."
	// MsgExportStartFailed 导出任务创建失败提示
	MsgExportStartFailed = "Failed to start CSV export."
)

// ErrExportInFlight 已有导出任务在进行中
var ErrExportInFlight = errors.New("an export task is already in flight")

// ExportTask 可取消的导出任务句柄
type ExportTask struct {
	ID string

	svc  *ExportService
	once sync.Once
	stop chan struct{}
}

// Cancel 取消轮询，幂等
func (t *ExportTask) Cancel() {
	t.once.Do(func() {
		close(t.stop)
	})
}

// ExportService 异步 CSV 导出轮询器
// 每个会话同一时刻至多一个任务；轮询固定间隔，200 即完成，
// 其余状态码一律视为仍在进行中，只有传输错误才是终态失败。
type ExportService struct {
	logger      *zap.Logger
	client      *parkez.Client
	sessions    *session.Store
	notifier    FlowNotifier
	interval    time.Duration
	downloadDir string

	mu      sync.Mutex
	flow    *state.Flow
	current *ExportTask
	wg      sync.WaitGroup
}

// NewExportService 创建导出服务
func NewExportService(
	logger *zap.Logger,
	client *parkez.Client,
	sessions *session.Store,
	notifier FlowNotifier,
	interval time.Duration,
	downloadDir string,
) *ExportService {
	return &ExportService{
		logger:      logger,
		client:      client,
		sessions:    sessions,
		notifier:    notifier,
		interval:    interval,
		downloadDir: downloadDir,
	}
}

func (s *ExportService) onFlowChange(flow, from, to, message string) {
	if s.notifier != nil {
		s.notifier.BroadcastFlowUpdate(ws.FlowUpdate{
			Flow:    flow,
			From:    from,
			State:   to,
			Message: message,
		})
	}
}

// Start 触发导出并开始轮询
// 已有任务在进行中时拒绝新任务（避免孤儿计时器）。
func (s *ExportService) Start(ctx context.Context) (*ExportTask, error) {
	if _, ok := s.sessions.Get(); !ok {
		return nil, ErrNoSession
	}

	task := &ExportTask{
		svc:  s,
		stop: make(chan struct{}),
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrExportInFlight
	}
	// 先占坑再发起请求，并发 Start 不会各自建任务后互相覆盖
	s.current = task
	if s.flow == nil {
		s.flow = state.NewExportFlow(s.onFlowChange)
	}
	flow := s.flow
	s.mu.Unlock()

	taskID, err := s.client.StartExport(ctx)
	if err != nil {
		s.clearTask(task)
		s.handleAuthFailure(err)
		s.logger.Error("Failed to start export", zap.Error(err))
		return nil, err
	}
	task.ID = taskID

	flow.Trigger(state.EventStart, MsgExportPreparing)
	s.logger.Info("Export started", zap.String("task_id", taskID))

	s.wg.Add(1)
	go s.pollLoop(task)

	return task, nil
}

// pollLoop 固定间隔轮询，直到完成、失败或被取消
// 所有退出路径都停止 ticker 并清理当前任务，避免泄漏计时器。
func (s *ExportService) pollLoop(task *ExportTask) {
	defer s.wg.Done()
	defer s.clearTask(task)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-task.stop:
			return
		case <-ticker.C:
			done := s.pollOnce(task)
			if done {
				return
			}
		}
	}
}

// pollOnce 执行一次轮询，返回是否应停止
func (s *ExportService) pollOnce(task *ExportTask) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval*10)
	defer cancel()

	result, err := s.client.PollExport(ctx, task.ID)
	if err != nil {
		// 传输异常是唯一的终态失败
		s.logger.Error("Export poll failed", zap.String("task_id", task.ID), zap.Error(err))
		s.finish(task, state.EventFail, MsgExportFailed)
		return true
	}

	if !result.Ready {
		// 尚未就绪，继续轮询
		return false
	}

	path := filepath.Join(s.downloadDir, ExportFileName)
	if err := s.saveCSV(path, result.Data); err != nil {
		s.logger.Error("Failed to save export file", zap.String("path", path), zap.Error(err))
		s.finish(task, state.EventFail, MsgExportFailed)
		return true
	}

	s.logger.Info("Export ready", zap.String("task_id", task.ID), zap.String("path", path))
	s.finish(task, state.EventComplete, MsgExportDone)
	return true
}

func (s *ExportService) saveCSV(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *ExportService) finish(task *ExportTask, event, message string) {
	s.mu.Lock()
	flow := s.flow
	s.mu.Unlock()

	if flow != nil {
		flow.Trigger(event, message)
	}
	task.Cancel()
}

func (s *ExportService) clearTask(task *ExportTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == task {
		s.current = nil
	}
}

// State 导出流程当前状态
func (s *ExportService) State() (flowState, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil {
		return state.ExportIdle, ""
	}
	return s.flow.Current(), s.flow.Message()
}

// CancelCurrent 取消进行中的任务（组件销毁路径）
func (s *ExportService) CancelCurrent() {
	s.mu.Lock()
	task := s.current
	s.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

// Stop 取消任务并等待轮询协程退出
func (s *ExportService) Stop() {
	s.CancelCurrent()
	s.wg.Wait()
}

func (s *ExportService) handleAuthFailure(err error) {
	if errors.Is(err, parkez.ErrUnauthorized) {
		s.logger.Warn("Session expired, clearing stored session")
		s.sessions.Clear()
	}
}
