package lfs

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"repo-migrator/internal/model"
	"repo-migrator/pkg/constants"
)

// Resolver 合并用户配置、工作区扫描与历史扫描，得到唯一的检测结果
type Resolver struct {
	settings Settings
	ignore   *Matcher
	history  *HistoryScanner
	logger   *zap.Logger
}

// NewResolver 创建检测器
func NewResolver(settings Settings, logger *zap.Logger) (*Resolver, error) {
	ignore, err := NewMatcher(settings.Ignore)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		settings: settings,
		ignore:   ignore,
		history:  NewHistoryScanner(logger, settings.HistoryDepth),
		logger:   logger,
	}, nil
}

// Resolve 对 repoPath 处的工作区执行检测
//
// 有配置项时为 configured 模式：显式文件（不存在的归入历史候选）∪ 模式匹配 ∪（autoDetect 时）按大小扫描；
// 无配置项时为 auto-detect 模式：按全局阈值扫描整个工作区。
// 两种模式下都会执行历史扫描，历史中超过阈值且已不在工作区的路径归入历史候选。扫描错误只降低覆盖率，不会中断检测。
func (r *Resolver) Resolve(ctx context.Context, name, repoPath string, table model.LFSConfigTable) (*model.DetectionResult, error) {
	log := r.logger.With(zap.String("repo", name))

	files, err := listWorkingTree(log, repoPath)
	if err != nil {
		log.Warn("工作区扫描失败，仅依赖历史扫描", zap.Error(err))
	}

	result := &model.DetectionResult{}
	current := map[string]struct{}{}
	var missing []string

	entry, configured := table.Lookup(name)
	if configured {
		result.Mode = constants.DetectionModeConfigured
		missing = r.applyRules(log, entry, repoPath, files, current)
	} else {
		result.Mode = constants.DetectionModeAutoDetect
		addAll(current, oversizedFiles(files, r.ignore, r.settings.ThresholdBytes))
	}

	scan, err := r.history.Scan(ctx, repoPath, r.settings.ThresholdBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		log.Warn("历史扫描失败，忽略历史中的大文件", zap.Error(err))
		scan = &HistoryScan{Seen: map[string]struct{}{}}
	}

	// 只有工作区中已不存在的路径才是历史候选；仍在工作区的文件由配置或忽略列表决定
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
	}
	history := map[string]struct{}{}
	for _, p := range scan.Oversized {
		if _, ok := present[p]; !ok {
			history[p] = struct{}{}
		}
	}
	for _, p := range missing {
		history[p] = struct{}{}
		if _, ok := scan.Seen[p]; !ok {
			result.UnverifiedFiles = append(result.UnverifiedFiles, p)
			log.Warn("配置的文件在工作区和最近历史中均不存在，可能是配置错误", zap.String("path", p))
		}
	}

	result.CurrentFiles = sortedKeys(current)
	result.HistoryFiles = sortedKeys(history)
	sort.Strings(result.UnverifiedFiles)

	log.Info("大文件检测完成",
		zap.String("mode", result.Mode),
		zap.Int("current_files", len(result.CurrentFiles)),
		zap.Int("history_files", len(result.HistoryFiles)),
		zap.Int("scanned_commits", scan.Scanned))

	return result, nil
}

// applyRules 应用配置规则，返回配置了但工作区中不存在的显式文件
func (r *Resolver) applyRules(log *zap.Logger, entry model.LFSEntry, repoPath string, files []treeFile, current map[string]struct{}) []string {
	var missing []string
	autoDetect := false

	for _, rule := range entry.Rules {
		switch rule := rule.(type) {
		case model.ExplicitFiles:
			for _, p := range rule.Paths {
				rel := cleanRelPath(p)
				if rel == "" {
					continue
				}
				info, err := os.Stat(filepath.Join(repoPath, filepath.FromSlash(rel)))
				if err == nil && info.Mode().IsRegular() {
					current[rel] = struct{}{}
					continue
				}
				// 配置中有但磁盘上没有：最常见的原因是已从工作区移除但仍留在历史中
				missing = append(missing, rel)
			}
		case model.PatternBased:
			matcher, err := NewMatcher(rule.Patterns)
			if err != nil {
				log.Warn("忽略无效的 LFS 模式", zap.Strings("patterns", rule.Patterns), zap.Error(err))
				continue
			}
			for _, f := range files {
				if matcher.Match(f.Path) {
					current[f.Path] = struct{}{}
				}
			}
		case model.AutoDetectOptIn:
			autoDetect = true
		}
	}

	if autoDetect {
		addAll(current, oversizedFiles(files, r.ignore, r.settings.ThresholdBytes))
	}

	return lo.Uniq(missing)
}

// cleanRelPath 规范化配置中的相对路径，不允许越出仓库根目录
func cleanRelPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(strings.TrimSpace(p))), "/")
}

func addAll(set map[string]struct{}, items []string) {
	for _, item := range items {
		set[item] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
