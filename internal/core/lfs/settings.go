package lfs

import (
	"fmt"

	"repo-migrator/pkg/constants"
)

// Settings 检测参数，启动时构造一次，显式传入各扫描器和策略选择器
type Settings struct {
	Threshold      string   // 原始阈值字符串，如 "50MB"
	ThresholdBytes int64    // 解析后的字节数
	Ignore         []string // 工作区扫描忽略规则
	HistoryDepth   int      // 历史扫描回溯的提交数
}

// NewSettings 解析阈值并补全默认值
func NewSettings(threshold string, ignore []string, historyDepth int) (Settings, error) {
	bytes, err := ParseSize(threshold)
	if err != nil {
		return Settings{}, err
	}
	if historyDepth <= 0 {
		historyDepth = constants.DefaultHistoryDepth
	}
	if _, err := NewMatcher(ignore); err != nil {
		return Settings{}, fmt.Errorf("忽略规则无效: %w", err)
	}

	return Settings{
		Threshold:      threshold,
		ThresholdBytes: bytes,
		Ignore:         ignore,
		HistoryDepth:   historyDepth,
	}, nil
}
