package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"repo-migrator/internal/adapter/notification"
	"repo-migrator/internal/core/lfs"
	"repo-migrator/internal/core/migration"
	"repo-migrator/internal/model"
	"repo-migrator/internal/pkg/config"
	"repo-migrator/internal/pkg/database"
	"repo-migrator/internal/pkg/git"
	"repo-migrator/internal/pkg/git/api"
	"repo-migrator/internal/pkg/gitexec"
	"repo-migrator/internal/pkg/logger"
	"repo-migrator/internal/pkg/metrics"
	"repo-migrator/internal/repository"
	"repo-migrator/internal/service"
	"repo-migrator/pkg/constants"
)

// app 一次命令执行所需的组件，按需装配
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	store  repository.StateStore

	settings lfs.Settings
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// newApp 加载配置、初始化日志和状态表
func newApp(configPath string) (*app, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, err := logger.Init(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	log.Debug("配置已加载", zap.String("path", path), zap.String("source", configSource(configPath)))

	settings, err := cfg.LFSSettings()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		settings: settings,
	}
	if err := a.openStore(); err != nil {
		return nil, err
	}
	return a, nil
}

func configSource(flagPath string) string {
	switch {
	case flagPath != "":
		return "命令行参数"
	case config.ResolvePath("") != "":
		return "环境变量"
	default:
		return "默认配置"
	}
}

func (a *app) openStore() error {
	switch a.cfg.State.Backend {
	case constants.StateBackendMySQL:
		db, err := database.Open(&a.cfg.Database)
		if err != nil {
			return err
		}
		backend := repository.NewGormBackend(db, a.cfg.State.BackupDir)
		if err := backend.AutoMigrate(); err != nil {
			_ = database.Close(db)
			return err
		}
		a.db = db
		a.store = repository.NewStateStore(backend)
		a.logger.Info("状态表使用数据库后端", zap.String("backend", backend.Describe()))
	default:
		backend := repository.NewFileBackend(a.cfg.State.FilePath, a.cfg.State.BackupDir)
		a.store = repository.NewStateStore(backend)
		a.logger.Debug("状态表使用文件后端", zap.String("backend", backend.Describe()))
	}
	return nil
}

// remote 按平台配置创建绑定 owner 的端点
func (a *app) remote(p *config.PlatformConfig) (*git.Remote, error) {
	token, err := p.ResolveToken(a.cfg.Crypto.AESKey)
	if err != nil {
		return nil, err
	}
	provider, err := git.NewProvider(&git.ClientConfig{
		PlatformType: api.PlatformType(p.Platform),
		BaseURL:      p.BaseURL,
		CloneURL:     p.CloneURL,
		Token:        token,
		Timeout:      p.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return git.NewRemote(provider, p.Owner, p.Private), nil
}

// enableMetrics 注册迁移指标，serve 模式通过 /metrics 暴露
func (a *app) enableMetrics() {
	a.metrics = metrics.NewCollector()
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(a.metrics)
}

// orchestrator 装配迁移编排器
func (a *app) orchestrator(ctx context.Context) (*migration.Orchestrator, error) {
	source, err := a.remote(&a.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("源端配置错误: %w", err)
	}
	destination, err := a.remote(&a.cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("目标端配置错误: %w", err)
	}

	executor := gitexec.NewExecutor(a.logger, a.cfg.Migration.GitBinary)
	if err := executor.CheckInstalled(ctx); err != nil {
		return nil, err
	}
	if err := destination.Provider().TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("目标平台连接失败: %w", err)
	}

	resolver, err := lfs.NewResolver(a.settings, a.logger)
	if err != nil {
		return nil, err
	}
	table, err := a.configTable()
	if err != nil {
		return nil, err
	}

	return migration.NewOrchestrator(migration.Dependencies{
		Store:       a.store,
		Source:      source,
		Destination: destination,
		Executor:    executor,
		Detector:    resolver,
		Settings:    a.settings,
		ConfigTable: table,
		Metrics:     a.metrics,
	}, migration.Options{
		WorkDir:       a.cfg.Migration.WorkDir,
		BatchSize:     a.cfg.Migration.BatchSize,
		Cooldown:      a.cfg.Migration.Cooldown,
		AdoptNonEmpty: a.cfg.Migration.AdoptNonEmpty,
	}, a.logger), nil
}

func (a *app) configTable() (model.LFSConfigTable, error) {
	if a.cfg.LFS.ConfigFile == "" {
		return model.LFSConfigTable{}, nil
	}
	return lfs.LoadConfigTable(a.cfg.LFS.ConfigFile)
}

// migrationService 状态查询与运行入口；orchestrator 为空时只能查询和重试
func (a *app) migrationService(o *migration.Orchestrator) *service.MigrationService {
	var runner service.Runner
	sm := migration.NewStateMachine()
	if o != nil {
		runner = o
		sm = o.StateMachine()
	}
	svc := service.NewMigrationService(a.store, runner, sm, a.logger)
	if webhooks := a.cfg.Notification.LarkWebhooks; len(webhooks) > 0 {
		notifiers := make([]notification.Notifier, 0, len(webhooks))
		for _, url := range webhooks {
			notifiers = append(notifiers, notification.NewLarkNotifier(url, a.logger))
		}
		svc.WithNotifier(notification.NewMultiNotifier(a.logger, notifiers...))
	}
	return svc
}

func (a *app) close() {
	if a.db != nil {
		_ = database.Close(a.db)
	}
	_ = logger.Close()
}
