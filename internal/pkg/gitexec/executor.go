package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	pkgErrors "repo-migrator/pkg/errors"
)

// Runner 在 dir 下执行一条 git 命令并返回标准输出
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// credentialPattern URL 中的 user:token@ 部分
var credentialPattern = regexp.MustCompile(`://[^/@\s]+@`)

// Executor 通过 git / git-lfs 命令行完成克隆、历史重写与推送
// 每条命令都显式指定工作目录，不修改进程的当前目录
type Executor struct {
	logger *zap.Logger
	run    Runner
}

// NewExecutor 创建执行器，binary 为空时使用 PATH 中的 git
func NewExecutor(logger *zap.Logger, binary string) *Executor {
	if binary == "" {
		binary = "git"
	}
	return &Executor{
		logger: logger,
		run:    commandRunner(binary),
	}
}

// CheckInstalled 确认 git 与 git-lfs 可用
func (e *Executor) CheckInstalled(ctx context.Context) error {
	if _, err := e.run(ctx, "", "version"); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "git 不可用", err)
	}
	if _, err := e.run(ctx, "", "lfs", "version"); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "git-lfs 不可用", err)
	}
	return nil
}

// CloneSingleBranch 只克隆指定分支到 destPath，并尽量拉取源端已有的 LFS 对象
func (e *Executor) CloneSingleBranch(ctx context.Context, remoteURL, branch, destPath string) error {
	parent := filepath.Dir(destPath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "创建工作目录失败", err)
	}

	if _, err := e.git(ctx, parent, "clone", "--single-branch", "--branch", branch, remoteURL, destPath); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, fmt.Sprintf("克隆分支 %s 失败", branch), err)
	}

	// 源仓库未使用 LFS 时这里会失败，不影响后续流程
	if _, err := e.git(ctx, destPath, "lfs", "fetch", "--all", "origin"); err != nil {
		e.logger.Debug("拉取源端 LFS 对象失败，忽略", zap.String("path", destPath), zap.Error(err))
	}
	return nil
}

// RewriteHistoryBySize 把全部历史中超过 thresholdBytes 的对象转为 LFS 指针
func (e *Executor) RewriteHistoryBySize(ctx context.Context, repoPath string, thresholdBytes int64) error {
	_, err := e.git(ctx, repoPath, "lfs", "migrate", "import", "--everything", "--yes",
		fmt.Sprintf("--above=%db", thresholdBytes))
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "按大小重写历史失败", err)
	}
	return nil
}

// RewriteHistoryByFileList 只把 paths 对应的文件在全部历史中转为 LFS 指针
func (e *Executor) RewriteHistoryByFileList(ctx context.Context, repoPath string, paths []string) error {
	if len(paths) == 0 {
		return pkgErrors.New(pkgErrors.CodeStrategyExecution, "文件列表为空")
	}

	patterns := make([]string, 0, len(paths))
	for _, p := range paths {
		pattern, err := includePattern(p)
		if err != nil {
			return err
		}
		patterns = append(patterns, pattern)
	}

	_, err := e.git(ctx, repoPath, "lfs", "migrate", "import", "--everything", "--yes",
		"--include="+strings.Join(patterns, ","))
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "按文件列表重写历史失败", err)
	}
	return nil
}

// globEscaper 转义 gitignore 风格模式中的通配符
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

// includePattern 把仓库内的相对路径转成只匹配该路径的 --include 模式
//
// git-lfs 按逗号切分 --include，路径中带逗号时无法精确表达，直接拒绝。
func includePattern(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.Contains(p, ",") {
		return "", pkgErrors.New(pkgErrors.CodeStrategyExecution, fmt.Sprintf("无法按文件列表重写路径 %q", p))
	}
	return "/" + globEscaper.Replace(p), nil
}

// Push 推送分支和标签到 remoteURL
func (e *Executor) Push(ctx context.Context, repoPath, remoteURL, branch string) error {
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if _, err := e.git(ctx, repoPath, "push", remoteURL, refspec); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, fmt.Sprintf("推送分支 %s 失败", branch), err)
	}
	if _, err := e.git(ctx, repoPath, "push", remoteURL, "--tags"); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "推送标签失败", err)
	}
	return nil
}

// PushLargeObjects 推送本地全部 LFS 对象
func (e *Executor) PushLargeObjects(ctx context.Context, repoPath, remoteURL string) error {
	if _, err := e.git(ctx, repoPath, "lfs", "push", "--all", remoteURL); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "推送 LFS 对象失败", err)
	}
	return nil
}

// ListTrackedLargeObjects 列出被 LFS 跟踪的文件路径
func (e *Executor) ListTrackedLargeObjects(ctx context.Context, repoPath string) ([]string, error) {
	out, err := e.git(ctx, repoPath, "lfs", "ls-files", "--all", "--name-only")
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "列出 LFS 文件失败", err)
	}

	seen := make(map[string]struct{})
	files := make([]string, 0)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		files = append(files, line)
	}
	return files, nil
}

// git 执行命令，日志和错误中的凭据都会被脱敏
func (e *Executor) git(ctx context.Context, dir string, args ...string) (string, error) {
	e.logger.Debug("执行 git 命令",
		zap.String("dir", dir),
		zap.String("args", Redact(strings.Join(args, " "))))

	out, err := e.run(ctx, dir, args...)
	if err != nil {
		return out, fmt.Errorf("git %s: %s", Redact(strings.Join(args, " ")), Redact(err.Error()))
	}
	return out, nil
}

// Redact 隐藏 URL 中的凭据
func Redact(s string) string {
	return credentialPattern.ReplaceAllString(s, "://***@")
}

func commandRunner(binary string) Runner {
	return func(ctx context.Context, dir string, args ...string) (string, error) {
		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return stdout.String(), fmt.Errorf("%w; output: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), nil
	}
}
