package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"repo-migrator/internal/pkg/git/api"
)

const (
	defaultAPIURL   = "https://api.github.com"
	defaultCloneURL = "https://github.com"
	perPage         = 100
)

// Provider GitHub平台提供者
type Provider struct {
	config *api.ProviderConfig
	client *api.Client
}

// NewProvider 创建GitHub提供者
func NewProvider(config *api.ProviderConfig) (api.GitProvider, error) {
	// GitHub可以省略BaseURL，使用默认值
	if config.BaseURL == "" {
		config.BaseURL = defaultAPIURL
	}
	if config.CloneURL == "" {
		config.CloneURL = defaultCloneURL
	}

	p := &Provider{config: config}
	p.client = api.NewClient(api.PlatformGitHub, config, p.setAuthHeader)
	return p, nil
}

// GetPlatformType 获取平台类型
func (p *Provider) GetPlatformType() api.PlatformType {
	return api.PlatformGitHub
}

// TestConnection 测试连接
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.client.Do(ctx, http.MethodGet, "/user", nil, nil); err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	return nil
}

type githubRepo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Fork          bool   `json:"fork"`
	Archived      bool   `json:"archived"`
	Size          int64  `json:"size"`
	Owner         struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
}

// ListRepositories 获取仓库列表
func (p *Provider) ListRepositories(ctx context.Context, owner string) ([]api.RepositoryInfo, error) {
	// 先尝试用户仓库
	githubRepos, err := api.FetchPages[githubRepo](ctx, p.client, fmt.Sprintf("/users/%s/repos?per_page=%d", owner, perPage), perPage)
	if api.IsStatus(err, http.StatusNotFound) {
		// 尝试组织仓库
		githubRepos, err = api.FetchPages[githubRepo](ctx, p.client, fmt.Sprintf("/orgs/%s/repos?per_page=%d", owner, perPage), perPage)
	}
	if err != nil {
		return nil, err
	}

	repos := make([]api.RepositoryInfo, len(githubRepos))
	for i, r := range githubRepos {
		repos[i] = api.RepositoryInfo{
			ID:            r.ID,
			Name:          r.Name,
			FullName:      r.FullName,
			Description:   r.Description,
			CloneURL:      r.CloneURL,
			DefaultBranch: r.DefaultBranch,
			Private:       r.Private,
			Fork:          r.Fork,
			Archived:      r.Archived,
			Empty:         r.Size == 0,
			Owner:         r.Owner.Login,
			OwnerType:     strings.ToLower(r.Owner.Type),
		}
	}

	return repos, nil
}

// CloneURL 克隆地址
func (p *Provider) CloneURL(owner, name string) string {
	return api.AuthURL(p.config.CloneURL, owner, name, "x-access-token", p.config.Token)
}

// RepositoryExists 仓库是否存在
func (p *Provider) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	err := p.client.Do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, nil)
	if api.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsEmpty 空仓库的 commits 接口返回 409
func (p *Provider) IsEmpty(ctx context.Context, owner, name string) (bool, error) {
	var commits []struct {
		SHA string `json:"sha"`
	}
	err := p.client.Do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/commits?per_page=1", owner, name), nil, &commits)
	if api.IsStatus(err, http.StatusConflict) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(commits) == 0, nil
}

// CreateRepository 优先按组织创建，owner 不是组织时在当前用户下创建
func (p *Provider) CreateRepository(ctx context.Context, owner, name string, private bool) error {
	body := map[string]any{
		"name":      name,
		"private":   private,
		"auto_init": false,
	}

	err := p.client.Do(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/repos", owner), body, nil)
	if api.IsStatus(err, http.StatusNotFound) {
		err = p.client.Do(ctx, http.MethodPost, "/user/repos", body, nil)
	}
	if err != nil {
		return fmt.Errorf("创建仓库 %s/%s 失败: %w", owner, name, err)
	}
	return nil
}

// EnableLargeObjectStorage GitHub 仓库默认支持 LFS
func (p *Provider) EnableLargeObjectStorage(ctx context.Context, owner, name string) error {
	return nil
}

// DeleteRepository 删除仓库
func (p *Provider) DeleteRepository(ctx context.Context, owner, name string) error {
	err := p.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/%s", owner, name), nil, nil)
	if err != nil && !api.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("删除仓库 %s/%s 失败: %w", owner, name, err)
	}
	return nil
}

// setAuthHeader 设置认证头
func (p *Provider) setAuthHeader(req *http.Request) {
	if p.config.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", p.config.Token))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}
