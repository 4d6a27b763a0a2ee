package api

import "time"

// PlatformType 平台类型
type PlatformType string

const (
	PlatformGitea  PlatformType = "gitea"
	PlatformGitLab PlatformType = "gitlab"
	PlatformGitHub PlatformType = "github"
)

// RepositoryInfo 仓库信息
type RepositoryInfo struct {
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
	Owner         string `json:"owner"`
	OwnerType     string `json:"owner_type"` // user, organization
}

// ProviderConfig 通用平台配置
type ProviderConfig struct {
	BaseURL  string        // API 基础URL
	CloneURL string        // 克隆地址的基础URL，为空时按平台推导
	Token    string        // 访问Token
	Timeout  time.Duration // 单次请求超时
	Attempts uint          // 网络错误/5xx 的最大尝试次数
	Delay    time.Duration // 重试初始间隔
}
