package model

// LFSRule 单条 LFS 配置规则，三种形态之一：
// ExplicitFiles / PatternBased / AutoDetectOptIn
type LFSRule interface {
	isLFSRule()
}

// ExplicitFiles 显式列出的相对路径
type ExplicitFiles struct {
	Paths []string
}

// PatternBased glob 表达式
type PatternBased struct {
	Patterns []string
}

// AutoDetectOptIn 有显式配置时仍然执行按大小自动检测
type AutoDetectOptIn struct{}

func (ExplicitFiles) isLFSRule()   {}
func (PatternBased) isLFSRule()    {}
func (AutoDetectOptIn) isLFSRule() {}

// LFSEntry 某个仓库的配置项
type LFSEntry struct {
	Rules []LFSRule
}

// LFSConfigTable 以仓库名为键的配置表，空表是合法状态
type LFSConfigTable map[string]LFSEntry

// Lookup 查找仓库配置；ok=false 表示该仓库没有配置项（纯自动检测）
func (t LFSConfigTable) Lookup(name string) (LFSEntry, bool) {
	if t == nil {
		return LFSEntry{}, false
	}
	entry, ok := t[name]
	return entry, ok
}
