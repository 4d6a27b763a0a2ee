package gitea

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"repo-migrator/internal/pkg/git/api"
)

// Gitea 默认 MAX_RESPONSE_ITEMS 为 50
const perPage = 50

// Provider Gitea平台提供者
type Provider struct {
	config *api.ProviderConfig
	client *api.Client
}

// NewProvider 创建Gitea提供者
func NewProvider(config *api.ProviderConfig) (api.GitProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL不能为空")
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if config.CloneURL == "" {
		config.CloneURL = baseURL
	}

	p := &Provider{config: config}
	apiConfig := *config
	apiConfig.BaseURL = baseURL + "/api/v1"
	p.client = api.NewClient(api.PlatformGitea, &apiConfig, p.setAuthHeader)
	return p, nil
}

// GetPlatformType 获取平台类型
func (p *Provider) GetPlatformType() api.PlatformType {
	return api.PlatformGitea
}

// TestConnection 测试连接
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.client.Do(ctx, http.MethodGet, "/user", nil, nil); err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	return nil
}

type giteaRepo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Fork          bool   `json:"fork"`
	Archived      bool   `json:"archived"`
	Empty         bool   `json:"empty"`
	Owner         struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
}

func (r *giteaRepo) toInfo() api.RepositoryInfo {
	return api.RepositoryInfo{
		ID:            r.ID,
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		CloneURL:      r.CloneURL,
		DefaultBranch: r.DefaultBranch,
		Private:       r.Private,
		Fork:          r.Fork,
		Archived:      r.Archived,
		Empty:         r.Empty,
		Owner:         r.Owner.Login,
		OwnerType:     strings.ToLower(r.Owner.Type),
	}
}

// ListRepositories 获取仓库列表
func (p *Provider) ListRepositories(ctx context.Context, owner string) ([]api.RepositoryInfo, error) {
	// 先尝试作为用户
	giteaRepos, err := api.FetchPages[giteaRepo](ctx, p.client, fmt.Sprintf("/users/%s/repos?limit=%d", owner, perPage), perPage)
	if api.IsStatus(err, http.StatusNotFound) || (err == nil && len(giteaRepos) == 0) {
		// 尝试作为组织
		giteaRepos, err = api.FetchPages[giteaRepo](ctx, p.client, fmt.Sprintf("/orgs/%s/repos?limit=%d", owner, perPage), perPage)
		if api.IsStatus(err, http.StatusNotFound) {
			return []api.RepositoryInfo{}, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("获取Gitea仓库失败: %w", err)
	}

	repos := make([]api.RepositoryInfo, len(giteaRepos))
	for i := range giteaRepos {
		repos[i] = giteaRepos[i].toInfo()
	}
	return repos, nil
}

// CloneURL 克隆地址
func (p *Provider) CloneURL(owner, name string) string {
	return api.AuthURL(p.config.CloneURL, owner, name, "oauth2", p.config.Token)
}

func (p *Provider) getRepository(ctx context.Context, owner, name string) (*giteaRepo, error) {
	var repo giteaRepo
	if err := p.client.Do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// RepositoryExists 仓库是否存在
func (p *Provider) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := p.getRepository(ctx, owner, name)
	if api.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsEmpty 读取仓库的 empty 字段
func (p *Provider) IsEmpty(ctx context.Context, owner, name string) (bool, error) {
	repo, err := p.getRepository(ctx, owner, name)
	if err != nil {
		return false, err
	}
	return repo.Empty, nil
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

// EnableLargeObjectStorage Gitea 的 LFS 由服务端全局开关控制
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
}
