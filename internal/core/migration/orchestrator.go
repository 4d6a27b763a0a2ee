package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"repo-migrator/internal/core/lfs"
	"repo-migrator/internal/model"
	"repo-migrator/internal/pkg/git/api"
	"repo-migrator/internal/pkg/metrics"
	"repo-migrator/internal/repository"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

const outcomeSkipped = "skipped"

// rollbackTimeout 回滚目标仓库时使用独立的超时，ctx 已取消也要尽量清理
const rollbackTimeout = 30 * time.Second

// Options 编排参数
type Options struct {
	WorkDir       string        // 本地克隆根目录，每个仓库独占一个子目录
	BatchSize     int           // 每处理多少个仓库冷却一次，0 表示不冷却
	Cooldown      time.Duration // 冷却时长
	AdoptNonEmpty bool          // 目标仓库已有内容时直接标记完成
}

// Dependencies 编排器依赖
type Dependencies struct {
	Store       repository.StateStore
	Source      Source
	Destination Destination
	Executor    Executor
	Detector    Detector
	Settings    lfs.Settings
	ConfigTable model.LFSConfigTable
	Metrics     *metrics.Collector
}

// RunReport 一次运行的汇总
type RunReport struct {
	RunID       string    `json:"run_id"`
	Snapshot    string    `json:"snapshot"`
	StaleReset  int       `json:"stale_reset"`
	Pending     int       `json:"pending"`
	Attempted   int       `json:"attempted"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	QuotaPauses int       `json:"quota_pauses"`
	Interrupted bool      `json:"interrupted"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Orchestrator 迁移编排器
// 单工作者，严格按 pendingRepositories() 的顺序逐个处理
type Orchestrator struct {
	deps    Dependencies
	options Options
	sm      *StateMachine
	logger  *zap.Logger

	running sync.Mutex
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps Dependencies, options Options, logger *zap.Logger) *Orchestrator {
	if options.WorkDir == "" {
		options.WorkDir = filepath.Join(os.TempDir(), "repo-migrator")
	}
	if deps.ConfigTable == nil {
		deps.ConfigTable = model.LFSConfigTable{}
	}

	return &Orchestrator{
		deps:    deps,
		options: options,
		sm:      NewStateMachine(),
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// StateMachine 记录状态机，供外部重置操作校验
func (o *Orchestrator) StateMachine() *StateMachine {
	return o.sm
}

// Run 执行一轮迁移
// 同一时刻只允许一轮运行；状态存储不可用时立即返回错误，单个仓库的失败只记录在状态表中
func (o *Orchestrator) Run(ctx context.Context) (report *RunReport, err error) {
	if !o.running.TryLock() {
		return nil, pkgErrors.ErrRunInProgress
	}
	defer o.running.Unlock()

	report = &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}
	log := o.logger.With(zap.String("run_id", report.RunID))
	defer func() {
		report.FinishedAt = o.now()
		o.deps.Metrics.ObserveRun(err)
	}()

	// 1. 复位上次崩溃遗留的 processing
	if report.StaleReset, err = o.deps.Store.ResetStaleProcessing(); err != nil {
		return report, err
	}
	if report.StaleReset > 0 {
		log.Warn("复位上次运行遗留的处理中记录", zap.Int("count", report.StaleReset))
	}

	// 2. 运行前备份
	if report.Snapshot, err = o.deps.Store.Snapshot(); err != nil {
		return report, err
	}

	pending, err := o.deps.Store.PendingRepositories()
	if err != nil {
		return report, err
	}
	report.Pending = len(pending)
	log.Info("开始迁移",
		zap.Int("pending", len(pending)),
		zap.String("snapshot", report.Snapshot),
		zap.String("threshold", o.deps.Settings.Threshold))

	// 3. 逐个处理；配额暂停是运行级状态：等待重置后只重试当前仓库一次
	suspended := false
	for i := 0; i < len(pending); {
		if ctx.Err() != nil {
			break
		}
		if !suspended && i > 0 && o.options.BatchSize > 0 && o.options.Cooldown > 0 && i%o.options.BatchSize == 0 {
			log.Info("批次间冷却", zap.Int("processed", i), zap.Duration("cooldown", o.options.Cooldown))
			if o.sleep(ctx, o.options.Cooldown) != nil {
				break
			}
		}

		name := pending[i].Name
		outcome, quota, attemptErr := o.migrate(ctx, log, name, suspended)
		if attemptErr != nil {
			if ctx.Err() != nil {
				break
			}
			return report, attemptErr
		}

		if outcome == metrics.OutcomeSuspended {
			report.QuotaPauses++
			if err := o.waitForQuota(ctx, log, name, quota); err != nil {
				break
			}
			suspended = true
			continue
		}

		suspended = false
		i++
		switch outcome {
		case metrics.OutcomeCompleted, metrics.OutcomeAdopted:
			report.Attempted++
			report.Completed++
		case metrics.OutcomeFailed:
			report.Attempted++
			report.Failed++
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		report.Interrupted = true
		o.cleanupInterrupted(log)
		return report, ctxErr
	}

	log.Info("迁移结束",
		zap.Int("attempted", report.Attempted),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Int("quota_pauses", report.QuotaPauses))
	return report, nil
}

// attempt 单个仓库一次迁移尝试的上下文
type attempt struct {
	record    *model.RepoRecord
	workDir   string
	created   bool
	createdAt time.Time
	adopted   bool
	plan      *lfs.MigrationPlan
	tracked   []string
}

// migrate 处理单个仓库
// 返回的 error 只表示状态存储故障或被中断，仓库自身的失败已写入状态表
func (o *Orchestrator) migrate(ctx context.Context, runLog *zap.Logger, name string, resumed bool) (string, *api.RateLimitError, error) {
	log := runLog.With(zap.String("repo", name))
	start := o.now()

	record, err := o.deps.Store.Get(name)
	if err != nil {
		return "", nil, err
	}
	if err := o.sm.Check(record.State(), constants.RecordStateProcessing, SourceInside); err != nil {
		log.Warn("跳过仓库", zap.Error(err))
		return outcomeSkipped, nil, nil
	}
	if err := o.deps.Store.MarkProcessing(name); err != nil {
		return "", nil, err
	}

	a := &attempt{
		record:  record,
		workDir: filepath.Join(o.options.WorkDir, name),
	}
	if record.CreatedAt != nil {
		a.createdAt = *record.CreatedAt
	}

	runErr := o.execute(ctx, log, a)
	o.removeWorkDir(log, a.workDir)

	if runErr == nil {
		if err := o.complete(log, a); err != nil {
			return "", nil, err
		}
		outcome := metrics.OutcomeCompleted
		if a.adopted {
			outcome = metrics.OutcomeAdopted
		}
		o.deps.Metrics.ObserveRepository(outcome, o.strategyOf(a), o.now().Sub(start))
		return outcome, nil, nil
	}

	// 只回滚本次尝试新建的目标仓库，之前就存在的空仓库保留
	if a.created {
		o.rollbackDestination(ctx, log, name)
	}

	if ctx.Err() != nil {
		log.Warn("迁移被中断", zap.Error(runErr))
		return "", nil, ctx.Err()
	}

	if quota, ok := api.AsRateLimit(runErr); ok {
		return o.handleQuota(log, record, quota, resumed, start)
	}

	return o.fail(log, record, runErr, start)
}

// execute 依次执行：确认目标仓库 → 克隆 → 检测与选择策略 → 重写 → 推送
func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, a *attempt) error {
	name := a.record.Name

	o.removeWorkDir(log, a.workDir)

	// 1. 目标仓库存在且为空
	exists, err := o.deps.Destination.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("检查目标仓库失败: %w", err)
	}
	if !exists {
		if err := o.deps.Destination.Create(ctx, name); err != nil {
			return fmt.Errorf("创建目标仓库失败: %w", err)
		}
		a.created = true
		a.createdAt = o.now()
		createdAt := a.createdAt
		if _, err := o.deps.Store.Update(name, model.RecordPatch{CreatedAt: &createdAt}); err != nil {
			return err
		}
		log.Info("已创建目标仓库")
	} else {
		empty, err := o.deps.Destination.IsEmpty(ctx, name)
		if err != nil {
			return fmt.Errorf("检查目标仓库内容失败: %w", err)
		}
		if !empty {
			if o.options.AdoptNonEmpty {
				log.Warn("目标仓库已有内容，按已迁移处理")
				a.adopted = true
				return nil
			}
			return pkgErrors.New(pkgErrors.CodeDestinationNotEmpty, fmt.Sprintf("目标仓库 %s 已有内容", name))
		}
		log.Info("复用已存在的空目标仓库")
	}

	// 2. 克隆源仓库
	if err := o.deps.Executor.CloneSingleBranch(ctx, o.deps.Source.CloneURL(name), a.record.Branch, a.workDir); err != nil {
		return err
	}

	// 3. 检测大文件并选择策略
	result, err := o.deps.Detector.Resolve(ctx, name, a.workDir, o.deps.ConfigTable)
	if err != nil {
		return err
	}
	a.plan = lfs.SelectStrategy(result, o.deps.Settings)
	log.Info("迁移策略",
		zap.String("strategy", a.plan.Strategy),
		zap.Strings("current_files", result.CurrentFiles),
		zap.Strings("history_files", result.HistoryFiles))

	destURL := o.deps.Destination.CloneURL(name)

	// 4. 重写历史并推送 LFS 对象
	if a.plan.RequiresRewrite() {
		if err := o.deps.Destination.EnableLargeObjectStorage(ctx, name); err != nil {
			return fmt.Errorf("开启目标仓库 LFS 失败: %w", err)
		}

		switch a.plan.Strategy {
		case constants.StrategySizeThreshold:
			log.Info("按大小阈值重写全部历史", zap.String("above", humanize.IBytes(uint64(a.plan.ThresholdBytes))))
			err = o.deps.Executor.RewriteHistoryBySize(ctx, a.workDir, a.plan.ThresholdBytes)
		case constants.StrategyFileList:
			// 跟踪规则清单即重写范围，git lfs migrate import 会在每个重写的提交里写入对应的 .gitattributes
			manifest := a.plan.TrackedPaths()
			log.Info("按文件列表重写历史", zap.Strings("files", manifest))
			err = o.deps.Executor.RewriteHistoryByFileList(ctx, a.workDir, manifest)
		}
		if err != nil {
			return err
		}

		tracked, err := o.deps.Executor.ListTrackedLargeObjects(ctx, a.workDir)
		if err != nil {
			return err
		}
		a.tracked = tracked
		log.Info("重写完成", zap.Int("tracked_files", len(tracked)))

		if err := o.deps.Executor.PushLargeObjects(ctx, a.workDir, destURL); err != nil {
			return err
		}
	}

	// 5. 推送分支
	return o.deps.Executor.Push(ctx, a.workDir, destURL, a.record.Branch)
}

// complete 写入检测结果并标记完成
func (o *Orchestrator) complete(log *zap.Logger, a *attempt) error {
	name := a.record.Name
	if a.plan != nil {
		hasLFS := a.plan.RequiresRewrite()
		strategy := a.plan.Strategy
		files := a.tracked
		if files == nil {
			files = a.plan.TrackedPaths()
		}
		if _, err := o.deps.Store.Update(name, model.RecordPatch{
			HasLFS:      &hasLFS,
			LFSStrategy: &strategy,
			LFSFiles:    files,
		}); err != nil {
			return err
		}
	}

	if a.createdAt.IsZero() {
		a.createdAt = o.now()
	}
	if err := o.deps.Store.MarkCompleted(name, a.createdAt); err != nil {
		return err
	}
	log.Info("仓库迁移完成", zap.String("strategy", o.strategyOf(a)))
	return nil
}

// handleQuota 第一次配额错误不计入重试次数，暂停后重试；恢复后再次失败只记录错误
func (o *Orchestrator) handleQuota(log *zap.Logger, record *model.RepoRecord, quota *api.RateLimitError, resumed bool, start time.Time) (string, *api.RateLimitError, error) {
	processing := false
	patch := model.RecordPatch{Processing: &processing}

	if !resumed {
		if _, err := o.deps.Store.Update(record.Name, patch); err != nil {
			return "", nil, err
		}
		o.deps.Metrics.QuotaPause()
		o.deps.Metrics.ObserveRepository(metrics.OutcomeSuspended, "", o.now().Sub(start))
		log.Warn("目标平台配额耗尽，暂停全部迁移",
			zap.String("platform", string(quota.Platform)),
			zap.Time("reset_at", quota.ResetAt))
		return metrics.OutcomeSuspended, quota, nil
	}

	msg := quota.Error()
	msgPtr := &msg
	patch.Error = &msgPtr
	if _, err := o.deps.Store.Update(record.Name, patch); err != nil {
		return "", nil, err
	}
	o.deps.Metrics.ObserveRepository(metrics.OutcomeFailed, "", o.now().Sub(start))
	log.Error("配额恢复后重试仍失败，继续处理下一个仓库", zap.Error(quota))
	return metrics.OutcomeFailed, nil, nil
}

// fail 记录失败并递增重试次数
func (o *Orchestrator) fail(log *zap.Logger, record *model.RepoRecord, runErr error, start time.Time) (string, *api.RateLimitError, error) {
	target := constants.RecordStateFailed
	if record.RetryCount+1 >= constants.MaxRetryCount {
		target = constants.RecordStateExhausted
	}
	if err := o.sm.Check(constants.RecordStateProcessing, target, SourceInside); err != nil {
		return "", nil, err
	}

	if err := o.deps.Store.MarkFailed(record.Name, runErr.Error()); err != nil {
		return "", nil, err
	}
	o.deps.Metrics.ObserveRepository(metrics.OutcomeFailed, "", o.now().Sub(start))

	if target == constants.RecordStateExhausted {
		log.Error("仓库迁移失败", zap.Error(pkgErrors.Wrap(pkgErrors.CodeMaxRetriesExceeded, "已达到最大重试次数，需要人工重置", runErr)))
	} else {
		log.Error("仓库迁移失败", zap.Int("retry_count", record.RetryCount+1), zap.Error(runErr))
	}
	return metrics.OutcomeFailed, nil, nil
}

// waitForQuota 阻塞到配额重置时间
func (o *Orchestrator) waitForQuota(ctx context.Context, log *zap.Logger, name string, quota *api.RateLimitError) error {
	wait := quota.ResetAt.Sub(o.now())
	if wait < 0 {
		wait = 0
	}
	log.Warn("等待配额重置", zap.String("repo", name), zap.Duration("wait", wait))
	return o.sleep(ctx, wait)
}

func (o *Orchestrator) rollbackDestination(ctx context.Context, log *zap.Logger, name string) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := o.deps.Destination.Delete(rollbackCtx, name); err != nil {
		log.Error("回滚目标仓库失败，需要人工删除", zap.Error(err))
		return
	}
	log.Info("已回滚本次新建的目标仓库")
}

func (o *Orchestrator) removeWorkDir(log *zap.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn("清理工作目录失败", zap.String("dir", dir), zap.Error(err))
	}
}

// cleanupInterrupted 中断后复位所有 processing 并清理本地工作目录
func (o *Orchestrator) cleanupInterrupted(log *zap.Logger) {
	count, err := o.deps.Store.ResetStaleProcessing()
	if err != nil {
		log.Error("中断清理：复位处理中记录失败", zap.Error(err))
	}

	entries, readErr := os.ReadDir(o.options.WorkDir)
	if readErr != nil && !errors.Is(readErr, os.ErrNotExist) {
		log.Warn("中断清理：读取工作目录失败", zap.Error(readErr))
	}
	for _, entry := range entries {
		o.removeWorkDir(log, filepath.Join(o.options.WorkDir, entry.Name()))
	}

	log.Warn("运行被中断，已完成清理", zap.Int("reset", count))
}

func (o *Orchestrator) strategyOf(a *attempt) string {
	if a.plan == nil {
		return ""
	}
	return a.plan.Strategy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
