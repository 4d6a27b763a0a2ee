package lfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"repo-migrator/internal/model"
)

// rawEntry 配置文件中的单个仓库条目，JSON 与 YAML 均可
//
//	{"my-repo": {"files": ["big.bin"], "patterns": ["*.psd"], "autoDetect": true}}
type rawEntry struct {
	Files      []string `yaml:"files"`
	Patterns   []string `yaml:"patterns"`
	AutoDetect bool     `yaml:"autoDetect"`
}

// LoadConfigTable 读取 LFS 配置文件
// 路径为空或文件不存在都视为“无配置”，返回空表而不是错误
func LoadConfigTable(path string) (model.LFSConfigTable, error) {
	if path == "" {
		return model.LFSConfigTable{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.LFSConfigTable{}, nil
		}
		return nil, fmt.Errorf("读取 LFS 配置失败: %w", err)
	}

	return ParseConfigTable(data)
}

// ParseConfigTable 将原始配置转换为规则表
func ParseConfigTable(data []byte) (model.LFSConfigTable, error) {
	raw := map[string]rawEntry{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析 LFS 配置失败: %w", err)
	}

	table := make(model.LFSConfigTable, len(raw))
	for name, entry := range raw {
		var rules []model.LFSRule
		if len(entry.Files) > 0 {
			rules = append(rules, model.ExplicitFiles{Paths: entry.Files})
		}
		if len(entry.Patterns) > 0 {
			rules = append(rules, model.PatternBased{Patterns: entry.Patterns})
		}
		if entry.AutoDetect {
			rules = append(rules, model.AutoDetectOptIn{})
		}
		table[name] = model.LFSEntry{Rules: rules}
	}
	return table, nil
}
