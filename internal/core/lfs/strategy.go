package lfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"repo-migrator/internal/model"
	"repo-migrator/pkg/constants"
)

// TrackingRule 一条 LFS 跟踪规则：路径 → 属性
type TrackingRule struct {
	Path       string
	Attributes string
}

// MigrationPlan 交给版本控制执行器的重写清单
type MigrationPlan struct {
	Strategy       string         // none | size-threshold | file-list
	ThresholdBytes int64          // 策略A使用
	Files          []string       // 策略B使用
	TrackingRules  []TrackingRule // CurrentFiles ∪ HistoryFiles，每个路径一条
}

// SelectStrategy 选择历史重写策略
//
// 历史中存在工作区已没有的大文件时必须按大小重写全部历史（策略A），
// 因为按路径重写找不到没有工作区路径可锚定的对象；
// 否则仅有工作区大文件时按显式文件列表重写（策略B）；都没有则不重写。
func SelectStrategy(result *model.DetectionResult, settings Settings) *MigrationPlan {
	plan := &MigrationPlan{
		Strategy:      constants.StrategyNone,
		TrackingRules: buildTrackingRules(result),
	}

	switch {
	case len(result.HistoryFiles) > 0:
		plan.Strategy = constants.StrategySizeThreshold
		plan.ThresholdBytes = settings.ThresholdBytes
	case len(result.CurrentFiles) > 0:
		plan.Strategy = constants.StrategyFileList
		plan.Files = append([]string{}, result.CurrentFiles...)
		sort.Strings(plan.Files)
	}

	return plan
}

// RequiresRewrite 是否需要重写历史
func (p *MigrationPlan) RequiresRewrite() bool {
	return p.Strategy != constants.StrategyNone
}

// TrackedPaths 跟踪规则覆盖的全部路径
func (p *MigrationPlan) TrackedPaths() []string {
	paths := make([]string, 0, len(p.TrackingRules))
	for _, rule := range p.TrackingRules {
		paths = append(paths, rule.Path)
	}
	return paths
}

// GitAttributes 以 .gitattributes 格式输出跟踪规则
func (p *MigrationPlan) GitAttributes() string {
	var b strings.Builder
	for _, rule := range p.TrackingRules {
		fmt.Fprintf(&b, "%s %s\n", escapeAttributePath(rule.Path), rule.Attributes)
	}
	return b.String()
}

// buildTrackingRules 与顺序无关；重复路径后写覆盖先写
func buildTrackingRules(result *model.DetectionResult) []TrackingRule {
	byPath := map[string]string{}
	for _, p := range result.CurrentFiles {
		byPath[p] = constants.LFSTrackAttributes
	}
	for _, p := range result.HistoryFiles {
		byPath[p] = constants.LFSTrackAttributes
	}

	paths := lo.Keys(byPath)
	sort.Strings(paths)

	rules := make([]TrackingRule, 0, len(paths))
	for _, p := range paths {
		rules = append(rules, TrackingRule{Path: p, Attributes: byPath[p]})
	}
	return rules
}

// gitattributes 中路径的空白需要转义
func escapeAttributePath(p string) string {
	return strings.ReplaceAll(p, " ", "[[:space:]]")
}
