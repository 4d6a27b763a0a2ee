package lfs

import (
	"fmt"
	"path"

	"github.com/gobwas/glob"
)

// Matcher 一组 glob 规则，'/' 为路径分隔符，"**" 可跨目录
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher 编译 glob 规则
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{
		patterns: patterns,
		globs:    make([]glob.Glob, 0, len(patterns)),
	}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("非法的 glob 表达式 %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match 相对路径或其文件名命中任意规则即返回 true
func (m *Matcher) Match(relPath string) bool {
	if m == nil {
		return false
	}
	base := path.Base(relPath)
	for _, g := range m.globs {
		if g.Match(relPath) || g.Match(base) {
			return true
		}
	}
	return false
}

// Patterns 原始规则
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.patterns
}
