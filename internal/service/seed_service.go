package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"repo-migrator/internal/model"
	"repo-migrator/internal/pkg/git/api"
	"repo-migrator/internal/repository"
)

// RepositoryLister 列出源端 owner 下的全部仓库
type RepositoryLister interface {
	List(ctx context.Context) ([]api.RepositoryInfo, error)
}

// SeedOptions 种子导入选项
type SeedOptions struct {
	IncludeArchived bool
	IncludeForks    bool
	IncludeEmpty    bool
	DefaultBranch   string // 平台未返回默认分支时使用
}

// SeedResult 导入结果
type SeedResult struct {
	Listed  int      `json:"listed"`
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Known   int      `json:"known"` // 状态表里已存在的
}

// SeedService 从源端平台列出仓库并追加到状态表
type SeedService struct {
	store  repository.StateStore
	lister RepositoryLister
	logger *zap.Logger
}

// NewSeedService 创建种子导入服务
func NewSeedService(store repository.StateStore, lister RepositoryLister, logger *zap.Logger) *SeedService {
	return &SeedService{
		store:  store,
		lister: lister,
		logger: logger,
	}
}

// Seed 只追加状态表中不存在的仓库名，已有记录和表顺序保持不变
func (s *SeedService) Seed(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}

	records, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		s.logger.Info("状态文件不存在，将新建状态表")
		records = nil
	}

	repos, err := s.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取仓库列表失败: %w", err)
	}

	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		known[r.Name] = struct{}{}
	}

	result := &SeedResult{Listed: len(repos)}
	for _, repo := range repos {
		if _, ok := known[repo.Name]; ok {
			result.Known++
			continue
		}
		if reason := skipReason(repo, opts); reason != "" {
			s.logger.Debug("跳过仓库", zap.String("repo", repo.FullName), zap.String("reason", reason))
			result.Skipped = append(result.Skipped, repo.Name)
			continue
		}

		branch := repo.DefaultBranch
		if branch == "" {
			branch = opts.DefaultBranch
		}
		records = append(records, &model.RepoRecord{Name: repo.Name, Branch: branch})
		known[repo.Name] = struct{}{}
		result.Added = append(result.Added, repo.Name)
	}

	if len(result.Added) == 0 {
		s.logger.Info("没有新增仓库", zap.Int("listed", result.Listed), zap.Int("known", result.Known))
		return result, nil
	}

	if err := s.store.Save(records); err != nil {
		return nil, err
	}

	s.logger.Info("仓库导入完成",
		zap.Int("listed", result.Listed),
		zap.Int("added", len(result.Added)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func skipReason(repo api.RepositoryInfo, opts SeedOptions) string {
	switch {
	case repo.Archived && !opts.IncludeArchived:
		return "archived"
	case repo.Fork && !opts.IncludeForks:
		return "fork"
	case repo.Empty && !opts.IncludeEmpty:
		return "empty"
	default:
		return ""
	}
}
