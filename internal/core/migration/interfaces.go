package migration

import (
	"context"

	"repo-migrator/internal/model"
)

// Executor 版本控制执行器，每个调用都显式指定工作目录
type Executor interface {
	CloneSingleBranch(ctx context.Context, remoteURL, branch, destPath string) error
	RewriteHistoryBySize(ctx context.Context, repoPath string, thresholdBytes int64) error
	RewriteHistoryByFileList(ctx context.Context, repoPath string, paths []string) error
	Push(ctx context.Context, repoPath, remoteURL, branch string) error
	PushLargeObjects(ctx context.Context, repoPath, remoteURL string) error
	ListTrackedLargeObjects(ctx context.Context, repoPath string) ([]string, error)
}

// Source 源端，只需要克隆地址
type Source interface {
	CloneURL(name string) string
}

// Destination 目标端托管平台
// 配额耗尽时返回的错误满足 errors.Is(err, pkgErrors.ErrQuotaExceeded) 并携带重置时间
type Destination interface {
	CloneURL(name string) string
	Exists(ctx context.Context, name string) (bool, error)
	IsEmpty(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string) error
	EnableLargeObjectStorage(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

// Detector 大文件检测
type Detector interface {
	Resolve(ctx context.Context, name, repoPath string, table model.LFSConfigTable) (*model.DetectionResult, error)
}
