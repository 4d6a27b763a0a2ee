package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"repo-migrator/internal/pkg/git/api"
)

const perPage = 100

// Provider GitLab平台提供者
type Provider struct {
	config *api.ProviderConfig
	client *api.Client
}

// NewProvider 创建GitLab提供者
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
	apiConfig.BaseURL = baseURL + "/api/v4"
	p.client = api.NewClient(api.PlatformGitLab, &apiConfig, p.setAuthHeader)
	return p, nil
}

// GetPlatformType 获取平台类型
func (p *Provider) GetPlatformType() api.PlatformType {
	return api.PlatformGitLab
}

// TestConnection 测试连接
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.client.Do(ctx, http.MethodGet, "/user", nil, nil); err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	return nil
}

type gitlabProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	DefaultBranch     string `json:"default_branch"`
	Visibility        string `json:"visibility"`
	ForkedFromProject *struct {
		ID int64 `json:"id"`
	} `json:"forked_from_project"`
	Archived  bool `json:"archived"`
	EmptyRepo bool `json:"empty_repo"`
	Namespace struct {
		Path string `json:"path"`
		Kind string `json:"kind"`
	} `json:"namespace"`
}

// ListRepositories 获取仓库列表
func (p *Provider) ListRepositories(ctx context.Context, owner string) ([]api.RepositoryInfo, error) {
	// GitLab使用组或用户的projects端点
	// 先尝试作为用户
	projects, err := api.FetchPages[gitlabProject](ctx, p.client,
		fmt.Sprintf("/users/%s/projects?per_page=%d", url.PathEscape(owner), perPage), perPage)
	if api.IsStatus(err, http.StatusNotFound) {
		// 尝试作为group
		projects, err = api.FetchPages[gitlabProject](ctx, p.client,
			fmt.Sprintf("/groups/%s/projects?per_page=%d", url.PathEscape(owner), perPage), perPage)
	}
	if err != nil {
		return nil, err
	}

	repos := make([]api.RepositoryInfo, len(projects))
	for i, pr := range projects {
		repos[i] = api.RepositoryInfo{
			ID:            pr.ID,
			Name:          pr.Path,
			FullName:      pr.PathWithNamespace,
			Description:   pr.Description,
			CloneURL:      pr.HTTPURLToRepo,
			DefaultBranch: pr.DefaultBranch,
			Private:       pr.Visibility == "private",
			Fork:          pr.ForkedFromProject != nil,
			Archived:      pr.Archived,
			Empty:         pr.EmptyRepo,
			Owner:         pr.Namespace.Path,
			OwnerType:     pr.Namespace.Kind,
		}
	}

	return repos, nil
}

// CloneURL 克隆地址
func (p *Provider) CloneURL(owner, name string) string {
	return api.AuthURL(p.config.CloneURL, owner, name, "oauth2", p.config.Token)
}

// projectPath GitLab 以 URL 编码的 namespace/path 作为项目 ID
func projectPath(owner, name string) string {
	return "/projects/" + url.PathEscape(owner+"/"+name)
}

func (p *Provider) getProject(ctx context.Context, owner, name string) (*gitlabProject, error) {
	var project gitlabProject
	if err := p.client.Do(ctx, http.MethodGet, projectPath(owner, name), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// RepositoryExists 仓库是否存在
func (p *Provider) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := p.getProject(ctx, owner, name)
	if api.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsEmpty 读取项目的 empty_repo 字段
func (p *Provider) IsEmpty(ctx context.Context, owner, name string) (bool, error) {
	project, err := p.getProject(ctx, owner, name)
	if err != nil {
		return false, err
	}
	return project.EmptyRepo, nil
}

// CreateRepository 在 owner 对应的命名空间下创建项目
func (p *Provider) CreateRepository(ctx context.Context, owner, name string, private bool) error {
	var namespace struct {
		ID int64 `json:"id"`
	}
	if err := p.client.Do(ctx, http.MethodGet, "/namespaces/"+url.PathEscape(owner), nil, &namespace); err != nil {
		return fmt.Errorf("查询命名空间 %s 失败: %w", owner, err)
	}

	visibility := "public"
	if private {
		visibility = "private"
	}
	body := map[string]any{
		"name":         name,
		"path":         name,
		"namespace_id": namespace.ID,
		"visibility":   visibility,
		"lfs_enabled":  true,
	}
	if err := p.client.Do(ctx, http.MethodPost, "/projects", body, nil); err != nil {
		return fmt.Errorf("创建仓库 %s/%s 失败: %w", owner, name, err)
	}
	return nil
}

// EnableLargeObjectStorage 打开项目的 lfs_enabled
func (p *Provider) EnableLargeObjectStorage(ctx context.Context, owner, name string) error {
	body := map[string]any{"lfs_enabled": true}
	if err := p.client.Do(ctx, http.MethodPut, projectPath(owner, name), body, nil); err != nil {
		return fmt.Errorf("开启 %s/%s 的 LFS 失败: %w", owner, name, err)
	}
	return nil
}

// DeleteRepository 删除仓库
func (p *Provider) DeleteRepository(ctx context.Context, owner, name string) error {
	err := p.client.Do(ctx, http.MethodDelete, projectPath(owner, name), nil, nil)
	if err != nil && !api.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("删除仓库 %s/%s 失败: %w", owner, name, err)
	}
	return nil
}

// setAuthHeader 设置认证头
func (p *Provider) setAuthHeader(req *http.Request) {
	if p.config.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", p.config.Token)
	}
}
