package dto

import (
	"time"

	"github.com/dustin/go-humanize"

	"repo-migrator/internal/model"
	"repo-migrator/pkg/constants"
)

// RepoListQuery 仓库列表查询参数
type RepoListQuery struct {
	State string `form:"state" binding:"omitempty,oneof=pending processing completed failed exhausted"`
}

// RepoURI 路径中的仓库名
type RepoURI struct {
	Name string `uri:"name" binding:"required,max=255"`
}

// RepoRecordResponse 仓库迁移记录响应
type RepoRecordResponse struct {
	Name        string   `json:"name"`
	Branch      string   `json:"branch"`
	State       string   `json:"state"`
	Transferred bool     `json:"transferred"`
	Processing  bool     `json:"processing"`
	Error       *string  `json:"error"`
	RetryCount  int      `json:"retry_count"`
	HasLFS      bool     `json:"has_lfs"`
	LFSStrategy string   `json:"lfs_strategy,omitempty"`
	LFSFiles    []string `json:"lfs_files,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	PushedAt    string   `json:"pushed_at,omitempty"`
	PushedAgo   string   `json:"pushed_ago,omitempty"` // 如 "3 hours ago"
}

// NewRepoRecordResponse 记录转响应
func NewRepoRecordResponse(r *model.RepoRecord, now time.Time) *RepoRecordResponse {
	resp := &RepoRecordResponse{
		Name:        r.Name,
		Branch:      r.Branch,
		State:       constants.RecordStateToString(r.State()),
		Transferred: r.Transferred,
		Processing:  r.Processing,
		Error:       r.Error,
		RetryCount:  r.RetryCount,
		HasLFS:      r.HasLFS,
		LFSStrategy: r.LFSStrategy,
		LFSFiles:    r.LFSFiles,
	}
	if r.CreatedAt != nil {
		resp.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	if r.PushedAt != nil {
		resp.PushedAt = r.PushedAt.Format(time.RFC3339)
		resp.PushedAgo = humanize.RelTime(*r.PushedAt, now, "ago", "from now")
	}
	return resp
}

// NewRepoRecordResponses 批量转换
func NewRepoRecordResponses(records []*model.RepoRecord, now time.Time) []*RepoRecordResponse {
	items := make([]*RepoRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, NewRepoRecordResponse(r, now))
	}
	return items
}

// RepoListResponse 仓库列表响应
type RepoListResponse struct {
	Items []*RepoRecordResponse `json:"items"`
	Total int                   `json:"total"`
}

// RetryAllResponse 批量重试响应
type RetryAllResponse struct {
	Names []string `json:"names"`
}
