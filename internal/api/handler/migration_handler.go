package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"repo-migrator/internal/dto"
	"repo-migrator/internal/service"
	pkgErrors "repo-migrator/pkg/errors"
	"repo-migrator/pkg/responses"
	"repo-migrator/pkg/utils"
)

// MigrationHandler 迁移状态与运维接口
type MigrationHandler struct {
	service *service.MigrationService
	runCtx  context.Context // 后台运行绑定服务生命周期
	now     func() time.Time
}

// NewMigrationHandler 创建处理器
func NewMigrationHandler(svc *service.MigrationService, runCtx context.Context) *MigrationHandler {
	return &MigrationHandler{
		service: svc,
		runCtx:  runCtx,
		now:     time.Now,
	}
}

// Stats 迁移统计
// @Router /api/v1/stats [get]
func (h *MigrationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Statistics()
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, stats)
}

// List 仓库列表，可按 state 过滤
// @Router /api/v1/repos [get]
func (h *MigrationHandler) List(c *gin.Context) {
	var query dto.RepoListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		responses.ErrorWithDetail(c, pkgErrors.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	records, err := h.service.List(query.State)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, dto.RepoListResponse{
		Items: dto.NewRepoRecordResponses(records, h.now()),
		Total: len(records),
	})
}

// Get 单个仓库详情
// @Router /api/v1/repos/{name} [get]
func (h *MigrationHandler) Get(c *gin.Context) {
	var uri dto.RepoURI
	if err := c.ShouldBindUri(&uri); err != nil {
		responses.ErrorWithDetail(c, pkgErrors.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	record, err := h.service.Get(uri.Name)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, dto.NewRepoRecordResponse(record, h.now()))
}

// Retry 清除失败记录
// @Router /api/v1/repos/{name}/retry [post]
func (h *MigrationHandler) Retry(c *gin.Context) {
	var uri dto.RepoURI
	if err := c.ShouldBindUri(&uri); err != nil {
		responses.ErrorWithDetail(c, pkgErrors.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	record, err := h.service.Retry(uri.Name)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "已重新加入待迁移队列", dto.NewRepoRecordResponse(record, h.now()))
}

// RetryAll 批量清除失败记录
// @Router /api/v1/retry-failed [post]
func (h *MigrationHandler) RetryAll(c *gin.Context) {
	names, err := h.service.RetryAllFailed()
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, dto.RetryAllResponse{Names: names})
}

// TriggerRun 异步触发一轮迁移，已有运行时返回冲突
// @Router /api/v1/runs [post]
func (h *MigrationHandler) TriggerRun(c *gin.Context) {
	if err := h.service.Start(h.runCtx); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "迁移已开始", h.service.Status())
}

// RunStatus 当前/最近一次运行状态
// @Router /api/v1/runs [get]
func (h *MigrationHandler) RunStatus(c *gin.Context) {
	responses.Success(c, h.service.Status())
}
