package model

import (
	"sort"

	"github.com/samber/lo"
)

// DetectionResult 单个仓库本次运行的大文件检测结果
//
// CurrentFiles 是工作区中需要转为 LFS 的文件；HistoryFiles 是历史中超过阈值、
// 但不在 CurrentFiles 中的路径；UnverifiedFiles 是配置了却在工作区和扫描窗口内
// 的历史中都找不到的路径，它是 HistoryFiles 的子集。
type DetectionResult struct {
	Mode            string   `json:"mode"` // configured | auto-detect
	CurrentFiles    []string `json:"current_files"`
	HistoryFiles    []string `json:"history_files"`
	UnverifiedFiles []string `json:"unverified_files,omitempty"`
}

// AllFiles CurrentFiles ∪ HistoryFiles，排序去重
func (d *DetectionResult) AllFiles() []string {
	all := lo.Uniq(append(append([]string{}, d.CurrentFiles...), d.HistoryFiles...))
	sort.Strings(all)
	return all
}

// HasLargeFiles 是否检测到任何大文件
func (d *DetectionResult) HasLargeFiles() bool {
	return len(d.CurrentFiles) > 0 || len(d.HistoryFiles) > 0
}
