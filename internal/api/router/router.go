package router

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"repo-migrator/internal/api/handler"
	"repo-migrator/internal/api/middleware"
	"repo-migrator/internal/pkg/jwt"
	"repo-migrator/internal/service"
)

// Options 路由依赖
type Options struct {
	Mode     string // debug, release, test
	Service  *service.MigrationService
	JWT      *jwt.Manager        // 为空时不注册需要认证的接口
	Gatherer prometheus.Gatherer // 为空时不注册 /metrics
	RunCtx   context.Context     // API 触发的后台运行使用的 ctx
	Logger   *zap.Logger
}

// Setup 设置路由
func Setup(opts Options) *gin.Engine {
	switch opts.Mode {
	case gin.ReleaseMode, gin.TestMode, gin.DebugMode:
		gin.SetMode(opts.Mode)
	}
	if opts.RunCtx == nil {
		opts.RunCtx = context.Background()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(opts.Logger))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	migrationHandler := handler.NewMigrationHandler(opts.Service, opts.RunCtx)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", migrationHandler.Stats)
		v1.GET("/repos", migrationHandler.List)
		v1.GET("/repos/:name", migrationHandler.Get)
		v1.GET("/runs", migrationHandler.RunStatus)

		if opts.JWT == nil {
			opts.Logger.Warn("未配置 auth.jwt.secret，重试与触发接口不可用")
			return r
		}

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(opts.JWT))
		{
			authed.POST("/repos/:name/retry", migrationHandler.Retry) // 清除失败记录
			authed.POST("/retry-failed", migrationHandler.RetryAll)   // 批量清除
			authed.POST("/runs", migrationHandler.TriggerRun)         // 触发一轮迁移
		}
	}

	return r
}
