package lfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

// HistoryScan 历史扫描结果
type HistoryScan struct {
	Oversized []string            // 在扫描窗口内任意提交中超过阈值的路径，已排序去重
	Seen      map[string]struct{} // 扫描窗口内出现过的全部路径
	Total     int                 // 可达提交总数
	Scanned   int                 // 实际扫描的提交数
}

// HistoryScanner 在最近 N 个可达提交中查找超过阈值的对象，包括已从工作区删除的文件
type HistoryScanner struct {
	logger *zap.Logger
	depth  int
}

// NewHistoryScanner 创建历史扫描器，depth <= 0 时使用默认的 50
func NewHistoryScanner(logger *zap.Logger, depth int) *HistoryScanner {
	if depth <= 0 {
		depth = constants.DefaultHistoryDepth
	}
	return &HistoryScanner{
		logger: logger,
		depth:  depth,
	}
}

// Scan 扫描仓库历史，只读不修改仓库
// 单个提交读取失败会被记录并跳过，不影响整体扫描
func (s *HistoryScanner) Scan(ctx context.Context, repoPath string, threshold int64) (*HistoryScan, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeScanFailure, fmt.Sprintf("打开仓库失败: %s", repoPath), err)
	}

	commits, err := s.reachableCommits(repo)
	if err != nil {
		return nil, err
	}

	result := &HistoryScan{
		Seen:  make(map[string]struct{}),
		Total: len(commits),
	}
	oversized := make(map[string]struct{})

	limit := min(len(commits), s.depth)
	for _, commit := range commits[:limit] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.scanCommit(commit, threshold, result.Seen, oversized); err != nil {
			s.logger.Warn("跳过无法读取的提交",
				zap.String("commit", commit.Hash.String()),
				zap.Error(pkgErrors.Wrap(pkgErrors.CodeScanFailure, "读取提交树失败", err)))
		}
		result.Scanned++
	}

	for p := range oversized {
		result.Oversized = append(result.Oversized, p)
	}
	sort.Strings(result.Oversized)

	s.logger.Debug("历史扫描完成",
		zap.String("repo", repoPath),
		zap.Int("total_commits", result.Total),
		zap.Int("scanned_commits", result.Scanned),
		zap.Int("oversized", len(result.Oversized)))

	return result, nil
}

func (s *HistoryScanner) scanCommit(commit *object.Commit, threshold int64, seen, oversized map[string]struct{}) error {
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	// 出错前已累积的路径保留
	return tree.Files().ForEach(func(f *object.File) error {
		seen[f.Name] = struct{}{}
		if f.Size > threshold {
			oversized[f.Name] = struct{}{}
		}
		return nil
	})
}

// reachableCommits 收集所有分支、标签、远端引用可达的提交，按提交时间倒序
func (s *HistoryScanner) reachableCommits(repo *git.Repository) ([]*object.Commit, error) {
	refs, err := repo.References()
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeScanFailure, "读取引用失败", err)
	}

	commits := make(map[plumbing.Hash]*object.Commit)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		if !name.IsBranch() && !name.IsTag() && !name.IsRemote() {
			return nil
		}

		tip, err := resolveCommit(repo, ref.Hash())
		if err != nil {
			s.logger.Debug("引用未指向提交，跳过", zap.String("ref", name.String()), zap.Error(err))
			return nil
		}
		if _, ok := commits[tip.Hash]; ok {
			return nil
		}

		iter, err := repo.Log(&git.LogOptions{From: tip.Hash})
		if err != nil {
			s.logger.Warn("遍历引用历史失败", zap.String("ref", name.String()), zap.Error(err))
			return nil
		}
		if err := iter.ForEach(func(c *object.Commit) error {
			commits[c.Hash] = c
			return nil
		}); err != nil {
			s.logger.Warn("遍历引用历史中断", zap.String("ref", name.String()), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeScanFailure, "遍历引用失败", err)
	}

	ordered := make([]*object.Commit, 0, len(commits))
	for _, c := range commits {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := ordered[i].Committer.When, ordered[j].Committer.When
		if ti.Equal(tj) {
			return ordered[i].Hash.String() < ordered[j].Hash.String()
		}
		return ti.After(tj)
	})

	return ordered, nil
}

// resolveCommit 解析引用目标，附注标签会被剥离到其指向的提交
func resolveCommit(repo *git.Repository, hash plumbing.Hash) (*object.Commit, error) {
	commit, err := repo.CommitObject(hash)
	if err == nil {
		return commit, nil
	}

	tag, tagErr := repo.TagObject(hash)
	if tagErr != nil {
		return nil, err
	}
	return tag.Commit()
}
