package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"repo-migrator/internal/core/migration"
	pkgErrors "repo-migrator/pkg/errors"
)

const jobMigrationRun = "migration_run"

// RunTrigger 定时任务触发的迁移入口
type RunTrigger interface {
	Run(ctx context.Context) (*migration.RunReport, error)
}

// Scheduler 调度器
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	trigger       RunTrigger
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// cronLogger 把 cron 内部日志转到 zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler 创建调度器；表达式支持可选的秒字段和 @every 等描述符
func NewScheduler(trigger RunTrigger, logger *zap.Logger) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: logger.Sugar()}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:          c,
		logger:        logger,
		trigger:       trigger,
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 注册迁移任务并启动；ctx 取消时正在执行的运行会被中断
func (s *Scheduler) Start(ctx context.Context, expr string) error {
	if expr == "" {
		return fmt.Errorf("未配置 scheduler.cron")
	}

	entryID, err := s.cron.AddFunc(expr, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("注册迁移任务失败 cron=%s: %w", expr, err)
	}
	s.cronSchedules[jobMigrationRun] = entryID

	s.cron.Start()
	s.logger.Info("定时迁移任务已注册", zap.String("cron", expr), zap.Int("entry_id", int(entryID)))
	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")
	<-s.cron.Stop().Done()
	s.logger.Info("定时任务调度器已停止")
}

// Entries 已注册任务，key 为任务名
func (s *Scheduler) Entries() map[string]cron.Entry {
	entries := make(map[string]cron.Entry, len(s.cronSchedules))
	for name, id := range s.cronSchedules {
		entries[name] = s.cron.Entry(id)
	}
	return entries
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("执行定时任务: 仓库迁移")

	report, err := s.trigger.Run(ctx)
	switch {
	case errors.Is(err, pkgErrors.ErrRunInProgress):
		s.logger.Info("已有迁移在运行，跳过本次调度")
	case err != nil:
		s.logger.Error("定时迁移执行失败", zap.Error(err))
	default:
		s.logger.Info("定时迁移完成",
			zap.String("run_id", report.RunID),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed))
	}
}
