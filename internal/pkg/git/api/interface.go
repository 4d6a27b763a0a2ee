package api

import "context"

// GitProvider Git平台提供者接口
// 源端只用到列表与克隆地址，目标端额外需要建库、开启大文件存储、删除
type GitProvider interface {
	// TestConnection 测试连接
	TestConnection(ctx context.Context) error

	// ListRepositories 获取指定所有者的全部仓库（自动翻页）
	// owner: 用户名或组织名
	ListRepositories(ctx context.Context, owner string) ([]RepositoryInfo, error)

	// GetPlatformType 获取平台类型
	GetPlatformType() PlatformType

	// CloneURL 带认证信息的 HTTPS 克隆/推送地址
	CloneURL(owner, name string) string

	// RepositoryExists 仓库是否存在
	RepositoryExists(ctx context.Context, owner, name string) (bool, error)

	// IsEmpty 仓库是否没有任何提交
	IsEmpty(ctx context.Context, owner, name string) (bool, error)

	// CreateRepository 在 owner 下创建空仓库
	CreateRepository(ctx context.Context, owner, name string, private bool) error

	// EnableLargeObjectStorage 为仓库开启 LFS 存储，平台默认开启时为空操作
	EnableLargeObjectStorage(ctx context.Context, owner, name string) error

	// DeleteRepository 删除仓库，不存在时视为成功
	DeleteRepository(ctx context.Context, owner, name string) error
}
