package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"repo-migrator/internal/core/lfs"
	"repo-migrator/pkg/utils"
)

// EnvConfigFile 配置文件路径的环境变量
const EnvConfigFile = "CONFIG_FILE"

// Config 全局配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Source       PlatformConfig     `mapstructure:"source"`
	Destination  PlatformConfig     `mapstructure:"destination"`
	Crypto       CryptoConfig       `mapstructure:"crypto"`
	LFS          LFSConfig          `mapstructure:"lfs"`
	State        StateConfig        `mapstructure:"state"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Migration    MigrationConfig    `mapstructure:"migration"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Notification NotificationConfig `mapstructure:"notification"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"` // debug, release
}

// PlatformConfig 托管平台配置，源端和目标端共用
type PlatformConfig struct {
	Platform string        `mapstructure:"platform" validate:"required,oneof=gitea gitlab github"`
	BaseURL  string        `mapstructure:"base_url"`  // API 地址，GitHub 可省略
	CloneURL string        `mapstructure:"clone_url"` // 克隆地址前缀，为空时按平台推导
	Owner    string        `mapstructure:"owner" validate:"required"`
	Token    string        `mapstructure:"token"`
	TokenEnc string        `mapstructure:"token_enc"` // AES-256-GCM 加密的 token，优先于 token
	Private  bool          `mapstructure:"private"`   // 新建仓库是否私有
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节
}

// LFSConfig 大文件检测配置
type LFSConfig struct {
	Threshold    string   `mapstructure:"threshold" validate:"required"` // 如 50MB
	Ignore       []string `mapstructure:"ignore"`
	HistoryDepth int      `mapstructure:"history_depth" validate:"gte=0"`
	ConfigFile   string   `mapstructure:"config_file"` // 按仓库的 LFS 配置表，可选
}

// StateConfig 状态表配置
type StateConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=file mysql"`
	FilePath  string `mapstructure:"file_path"`
	BackupDir string `mapstructure:"backup_dir"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
}

// MigrationConfig 编排配置
type MigrationConfig struct {
	WorkDir       string        `mapstructure:"work_dir"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=0"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	AdoptNonEmpty bool          `mapstructure:"adopt_non_empty"`
	GitBinary     string        `mapstructure:"git_binary"`
}

// SchedulerConfig 定时运行配置（serve 模式）
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron" validate:"required_if=Enabled true"`
}

// NotificationConfig 运行结束通知
type NotificationConfig struct {
	LarkWebhooks []string `mapstructure:"lark_webhooks" validate:"dive,url"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	AccessTokenExpire int    `mapstructure:"access_token_expire"` // 秒
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, console
	Output     string `mapstructure:"output"` // stdout, file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// ResolvePath 配置文件路径优先级：命令行参数 > CONFIG_FILE 环境变量 > 默认查找
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(EnvConfigFile)
}

// Load 加载并校验配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// 读取环境变量，如 MIGRATOR_DESTINATION_TOKEN
	v.SetEnvPrefix("MIGRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("配置校验失败: %s", utils.FormatValidationError(err))
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "repo-migrator")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("source.timeout", "30s")
	v.SetDefault("destination.timeout", "30s")
	v.SetDefault("destination.private", true)

	v.SetDefault("lfs.threshold", "50MB")
	v.SetDefault("lfs.history_depth", 50)

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.file_path", "data/repositories.yaml")
	v.SetDefault("state.backup_dir", "data/backups")

	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("migration.work_dir", "data/work")
	v.SetDefault("migration.batch_size", 10)
	v.SetDefault("migration.cooldown", "30s")

	v.SetDefault("auth.jwt.access_token_expire", 86400)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
}

// LFSSettings 解析阈值，构造检测参数；阈值格式错误在启动时即失败
func (c *Config) LFSSettings() (lfs.Settings, error) {
	return lfs.NewSettings(c.LFS.Threshold, c.LFS.Ignore, c.LFS.HistoryDepth)
}

// ResolveToken 返回明文 token，配置了 token_enc 时用 AES Key 解密
func (p *PlatformConfig) ResolveToken(aesKey string) (string, error) {
	if p.TokenEnc == "" {
		return p.Token, nil
	}
	token, err := utils.DecryptSecret(aesKey, p.TokenEnc)
	if err != nil {
		return "", fmt.Errorf("解密 %s token 失败: %w", p.Platform, err)
	}
	return token, nil
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}
