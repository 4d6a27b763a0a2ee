package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"repo-migrator/internal/adapter/notification"
	"repo-migrator/internal/core/migration"
	"repo-migrator/internal/model"
	"repo-migrator/internal/repository"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

// Runner 执行一轮迁移
type Runner interface {
	Run(ctx context.Context) (*migration.RunReport, error)
}

// RunStatus 最近一次运行的状态
type RunStatus struct {
	Running bool                 `json:"running"`
	Last    *migration.RunReport `json:"last,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// MigrationService 状态查询、人工重试和运行触发，CLI、API 和定时任务共用
type MigrationService struct {
	store    repository.StateStore
	runner   Runner
	sm       *migration.StateMachine
	notifier notification.Notifier
	logger   *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *migration.RunReport
	lastErr error
}

// NewMigrationService 创建迁移服务
func NewMigrationService(store repository.StateStore, runner Runner, sm *migration.StateMachine, logger *zap.Logger) *MigrationService {
	return &MigrationService{
		store:  store,
		runner: runner,
		sm:     sm,
		logger: logger,
	}
}

// WithNotifier 运行结束后发送通知
func (s *MigrationService) WithNotifier(n notification.Notifier) *MigrationService {
	s.notifier = n
	return s
}

// Statistics 迁移统计
func (s *MigrationService) Statistics() (*model.Statistics, error) {
	return s.store.Statistics()
}

// List 按状态名过滤，stateName 为空返回全部
func (s *MigrationService) List(stateName string) ([]*model.RepoRecord, error) {
	if stateName == "" {
		return s.store.List(nil)
	}
	state, ok := constants.RecordStateFromString(stateName)
	if !ok {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, fmt.Sprintf("未知状态: %s", stateName))
	}
	return s.store.List(&state)
}

// Get 查询单个仓库
func (s *MigrationService) Get(name string) (*model.RepoRecord, error) {
	return s.store.Get(name)
}

// Retry 清除失败记录，使其在下一轮重新进入待迁移队列
func (s *MigrationService) Retry(name string) (*model.RepoRecord, error) {
	record, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.sm.Check(record.State(), constants.RecordStatePending, migration.SourceOutside); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "无法重试", err)
	}
	if err := s.store.ClearError(name); err != nil {
		return nil, err
	}

	s.logger.Info("已清除失败记录", zap.String("repo", name), zap.Int("retry_count", record.RetryCount))
	return s.store.Get(name)
}

// RetryAllFailed 对所有失败和达到重试上限的仓库执行 Retry
func (s *MigrationService) RetryAllFailed() ([]string, error) {
	records, err := s.store.List(nil)
	if err != nil {
		return nil, err
	}

	failed := lo.Filter(records, func(r *model.RepoRecord, _ int) bool {
		state := r.State()
		return state == constants.RecordStateFailed || state == constants.RecordStateExhausted
	})

	names := make([]string, 0, len(failed))
	for _, r := range failed {
		if _, err := s.Retry(r.Name); err != nil {
			return names, err
		}
		names = append(names, r.Name)
	}
	return names, nil
}

// Run 同步执行一轮迁移
func (s *MigrationService) Run(ctx context.Context) (*migration.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, pkgErrors.ErrRunInProgress
	}
	defer s.running.Store(false)

	return s.run(ctx)
}

// Start 后台执行一轮迁移；已有运行时返回 ErrRunInProgress
func (s *MigrationService) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return pkgErrors.ErrRunInProgress
	}

	go func() {
		defer s.running.Store(false)
		_, _ = s.run(ctx)
	}()
	return nil
}

// Status 最近一次运行的状态
func (s *MigrationService) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := RunStatus{Running: s.running.Load(), Last: s.last}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	return status
}

func (s *MigrationService) run(ctx context.Context) (*migration.RunReport, error) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("迁移运行失败", zap.Error(err))
	}

	s.mu.Lock()
	s.last = report
	s.lastErr = err
	s.mu.Unlock()

	s.notify(ctx, report, err)
	return report, err
}

// notify 运行被中断时 ctx 已取消，通知使用独立的超时
func (s *MigrationService) notify(ctx context.Context, report *migration.RunReport, runErr error) {
	if s.notifier == nil {
		return
	}
	if pkgErrors.CodeOf(runErr) == pkgErrors.CodeConflict {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Send(sendCtx, notification.RunMessage(report, runErr)); err != nil {
		s.logger.Warn("发送运行通知失败", zap.Error(err))
	}
}
