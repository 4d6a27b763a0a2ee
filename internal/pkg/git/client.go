package git

import (
	"context"
	"fmt"
	"time"

	"repo-migrator/internal/pkg/git/api"
	"repo-migrator/internal/pkg/git/gitea"
	"repo-migrator/internal/pkg/git/github"
	"repo-migrator/internal/pkg/git/gitlab"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	PlatformType api.PlatformType // 平台类型
	BaseURL      string           // 平台基础URL，如: https://gitea.com
	CloneURL     string           // 克隆地址基础URL，为空时按平台推导
	Token        string           // 访问Token
	Timeout      time.Duration
}

// NewProvider 按平台类型创建提供者
func NewProvider(config *ClientConfig) (api.GitProvider, error) {
	if config.PlatformType == "" {
		return nil, fmt.Errorf("PlatformType不能为空")
	}

	providerConfig := &api.ProviderConfig{
		BaseURL:  config.BaseURL,
		CloneURL: config.CloneURL,
		Token:    config.Token,
		Timeout:  config.Timeout,
	}

	switch config.PlatformType {
	case api.PlatformGitea:
		return gitea.NewProvider(providerConfig)
	case api.PlatformGitLab:
		return gitlab.NewProvider(providerConfig)
	case api.PlatformGitHub:
		return github.NewProvider(providerConfig)
	default:
		return nil, fmt.Errorf("不支持的平台类型: %s", config.PlatformType)
	}
}

// Remote 绑定到某个 owner 的平台端点，迁移流程按仓库名操作
type Remote struct {
	provider api.GitProvider
	owner    string
	private  bool
}

// NewRemote 创建 Remote；private 决定新建仓库的可见性
func NewRemote(provider api.GitProvider, owner string, private bool) *Remote {
	return &Remote{
		provider: provider,
		owner:    owner,
		private:  private,
	}
}

// Owner 所属用户或组织
func (r *Remote) Owner() string {
	return r.owner
}

// Provider 底层平台提供者
func (r *Remote) Provider() api.GitProvider {
	return r.provider
}

// CloneURL 带认证的仓库地址
func (r *Remote) CloneURL(name string) string {
	return r.provider.CloneURL(r.owner, name)
}

func (r *Remote) Exists(ctx context.Context, name string) (bool, error) {
	return r.provider.RepositoryExists(ctx, r.owner, name)
}

func (r *Remote) IsEmpty(ctx context.Context, name string) (bool, error) {
	return r.provider.IsEmpty(ctx, r.owner, name)
}

func (r *Remote) Create(ctx context.Context, name string) error {
	return r.provider.CreateRepository(ctx, r.owner, name, r.private)
}

func (r *Remote) EnableLargeObjectStorage(ctx context.Context, name string) error {
	return r.provider.EnableLargeObjectStorage(ctx, r.owner, name)
}

func (r *Remote) Delete(ctx context.Context, name string) error {
	return r.provider.DeleteRepository(ctx, r.owner, name)
}

func (r *Remote) List(ctx context.Context) ([]api.RepositoryInfo, error) {
	return r.provider.ListRepositories(ctx, r.owner)
}
