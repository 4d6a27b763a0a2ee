package constants

import "fmt"

// MaxRetryCount 单个仓库的失败重试上限，达到后需显式 clearError 才会再次尝试
const MaxRetryCount = 3

// DefaultHistoryDepth 历史扫描默认回溯的提交数
const DefaultHistoryDepth = 50

// RecordState 仓库迁移状态（由记录字段推导，不单独持久化）
const (
	RecordStatePending    int8 = 0  // 待迁移
	RecordStateProcessing int8 = 10 // 迁移中
	RecordStateCompleted  int8 = 20 // 已完成
	RecordStateFailed     int8 = 30 // 失败，仍可自动重试
	RecordStateExhausted  int8 = 40 // 失败且已达重试上限
)

// int8 → string
var recordStateName = map[int8]string{
	RecordStatePending:    "pending",
	RecordStateProcessing: "processing",
	RecordStateCompleted:  "completed",
	RecordStateFailed:     "failed",
	RecordStateExhausted:  "exhausted",
}

// RecordStateToString int8 → string
func RecordStateToString(state int8) string {
	if name, ok := recordStateName[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// RecordStateFromString string → int8
func RecordStateFromString(name string) (int8, bool) {
	for state, n := range recordStateName {
		if n == name {
			return state, true
		}
	}
	return 0, false
}

// 检测模式
const (
	DetectionModeConfigured = "configured"
	DetectionModeAutoDetect = "auto-detect"
)

// 迁移策略
const (
	StrategyNone          = "none"           // 无需重写
	StrategySizeThreshold = "size-threshold" // 策略A: 按大小阈值重写全部历史
	StrategyFileList      = "file-list"      // 策略B: 按显式文件列表重写
)

// 状态存储后端
const (
	StateBackendFile  = "file"
	StateBackendMySQL = "mysql"
)

// Git 类型
const (
	GitTypeGitea  = "gitea"
	GitTypeGitLab = "gitlab"
	GitTypeGitHub = "github"
)

// LFSTrackAttributes git-lfs 跟踪规则的属性
const LFSTrackAttributes = "filter=lfs diff=lfs merge=lfs -text"

// JWT 相关
const (
	JWTTypeAccess = "access"
	JWTIssuer     = "repo-migrator"
)

// HTTP Header
const (
	HeaderAuthorization = "Authorization"
	HeaderBearerPrefix  = "Bearer "
)
