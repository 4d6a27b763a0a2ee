package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"repo-migrator/internal/model"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

// StateBackend 状态表的持久化后端，每次读写都是整张表
type StateBackend interface {
	Load() ([]*model.RepoRecord, error)
	Save(records []*model.RepoRecord) error
	// Snapshot 写入带时间戳的完整副本，返回副本位置
	Snapshot(records []*model.RepoRecord, at time.Time) (string, error)
	Describe() string
}

// StateStore 仓库迁移状态表，本次运行中哪些仓库待迁移/已完成/失败的唯一依据
// 每个操作对调用方都是原子的：读出整张表、修改、再整体写回
type StateStore interface {
	Load() ([]*model.RepoRecord, error)
	Save(records []*model.RepoRecord) error
	Get(name string) (*model.RepoRecord, error)
	List(state *int8) ([]*model.RepoRecord, error)
	PendingRepositories() ([]*model.RepoRecord, error)
	Update(name string, patch model.RecordPatch) (*model.RepoRecord, error)
	MarkProcessing(name string) error
	MarkCompleted(name string, createdAt time.Time) error
	MarkFailed(name string, message string) error
	ClearError(name string) error
	ResetStaleProcessing() (int, error)
	Statistics() (*model.Statistics, error)
	Snapshot() (string, error)
}

type stateStore struct {
	backend StateBackend
	mu      sync.Mutex
	now     func() time.Time
}

// NewStateStore 创建状态表
func NewStateStore(backend StateBackend) StateStore {
	return &stateStore{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *stateStore) Load() ([]*model.RepoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.Load()
}

func (s *stateStore) Save(records []*model.RepoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := names[r.Name]; dup {
			return pkgErrors.New(pkgErrors.CodeConflict, fmt.Sprintf("仓库名重复: %s", r.Name))
		}
		names[r.Name] = struct{}{}
	}
	return s.backend.Save(records)
}

func (s *stateStore) Get(name string) (*model.RepoRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	record, ok := findRecord(records, name)
	if !ok {
		return nil, notFound(name)
	}
	return record, nil
}

// List 按表顺序返回记录，state 为 nil 时返回全部
func (s *stateStore) List(state *int8) ([]*model.RepoRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return records, nil
	}
	return lo.Filter(records, func(r *model.RepoRecord, _ int) bool {
		return r.State() == *state
	}), nil
}

// PendingRepositories transferred=false && processing=false && retry_count<3，保持表顺序
func (s *stateStore) PendingRepositories() ([]*model.RepoRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	return lo.Filter(records, func(r *model.RepoRecord, _ int) bool {
		return r.Eligible()
	}), nil
}

// Update 合并 patch；设置 transferred=true 时同时清除 processing、error 并记录 pushed_at
func (s *stateStore) Update(name string, patch model.RecordPatch) (*model.RepoRecord, error) {
	var updated *model.RepoRecord
	err := s.mutate(name, func(r *model.RepoRecord) {
		applyPatch(r, patch)
		if patch.Transferred != nil && *patch.Transferred {
			r.Processing = false
			r.Error = nil
			if patch.PushedAt == nil {
				now := s.now()
				r.PushedAt = &now
			}
		}
		updated = r.Clone()
	})
	return updated, err
}

func (s *stateStore) MarkProcessing(name string) error {
	return s.mutate(name, func(r *model.RepoRecord) {
		r.Processing = true
	})
}

// MarkCompleted 无论之前是否有错误，都清除 error 并置 processing=false
func (s *stateStore) MarkCompleted(name string, createdAt time.Time) error {
	return s.mutate(name, func(r *model.RepoRecord) {
		created := createdAt.UTC()
		now := s.now()
		r.Transferred = true
		r.Processing = false
		r.Error = nil
		r.CreatedAt = &created
		r.PushedAt = &now
	})
}

// MarkFailed 记录失败信息并递增重试次数
func (s *stateStore) MarkFailed(name string, message string) error {
	return s.mutate(name, func(r *model.RepoRecord) {
		msg := message
		r.Processing = false
		r.Error = &msg
		r.RetryCount++
	})
}

// ClearError 清空错误和重试次数，开始新一轮重试
func (s *stateStore) ClearError(name string) error {
	return s.mutate(name, func(r *model.RepoRecord) {
		r.Error = nil
		r.RetryCount = 0
	})
}

// ResetStaleProcessing 启动时把上次崩溃遗留的 processing=true 全部复位，返回复位数量
func (s *stateStore) ResetStaleProcessing() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.Load()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range records {
		if r.Processing {
			r.Processing = false
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.backend.Save(records); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *stateStore) Statistics() (*model.Statistics, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	return computeStatistics(records), nil
}

// Snapshot 运行开始前备份整张表，用于人工回滚
func (s *stateStore) Snapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.Load()
	if err != nil {
		return "", err
	}
	return s.backend.Snapshot(records, s.now())
}

// mutate 读-改-写单条记录
func (s *stateStore) mutate(name string, fn func(r *model.RepoRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.Load()
	if err != nil {
		return err
	}
	record, ok := findRecord(records, name)
	if !ok {
		return notFound(name)
	}

	fn(record)
	return s.backend.Save(records)
}

func findRecord(records []*model.RepoRecord, name string) (*model.RepoRecord, bool) {
	return lo.Find(records, func(r *model.RepoRecord) bool {
		return r.Name == name
	})
}

func notFound(name string) error {
	return pkgErrors.New(pkgErrors.CodeNotFound, fmt.Sprintf("仓库记录不存在: %s", name))
}

func applyPatch(r *model.RepoRecord, patch model.RecordPatch) {
	if patch.Branch != nil {
		r.Branch = *patch.Branch
	}
	if patch.Transferred != nil {
		r.Transferred = *patch.Transferred
	}
	if patch.Processing != nil {
		r.Processing = *patch.Processing
	}
	if patch.CreatedAt != nil {
		t := patch.CreatedAt.UTC()
		r.CreatedAt = &t
	}
	if patch.PushedAt != nil {
		t := patch.PushedAt.UTC()
		r.PushedAt = &t
	}
	if patch.Error != nil {
		r.Error = *patch.Error
	}
	if patch.RetryCount != nil {
		r.RetryCount = *patch.RetryCount
	}
	if patch.HasLFS != nil {
		r.HasLFS = *patch.HasLFS
	}
	if patch.LFSStrategy != nil {
		r.LFSStrategy = *patch.LFSStrategy
	}
	if patch.LFSFiles != nil {
		r.LFSFiles = datatypes.JSONSlice[string](append([]string{}, patch.LFSFiles...))
	}
}

func computeStatistics(records []*model.RepoRecord) *model.Statistics {
	stats := &model.Statistics{Total: len(records)}
	for _, r := range records {
		switch r.State() {
		case constants.RecordStateCompleted:
			stats.Transferred++
		case constants.RecordStateProcessing:
			stats.Processing++
		case constants.RecordStateExhausted:
			stats.Failed++
			stats.Exhausted++
		case constants.RecordStateFailed:
			stats.Failed++
		}
		if r.Eligible() {
			stats.Pending++
		}
		if r.HasLFS {
			stats.WithLargeFiles++
			if r.Transferred {
				stats.WithLargeFilesTransferred++
			}
		}
	}
	if stats.Total > 0 {
		stats.PercentComplete = float64(stats.Transferred) * 100 / float64(stats.Total)
	}
	return stats
}
