package errors

import (
	stdErrors "errors"
	"fmt"
)

// 错误码
const (
	CodeSuccess         = 200
	CodePartialSuccess  = 206 // 部分成功
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeInternalError   = 500
	CodeDatabaseError   = 501
	CodeAuthError       = 502
	CodeValidationError = 503

	// 迁移相关
	CodeMalformedSize       = 600 // 阈值格式错误，启动时致命
	CodeScanFailure         = 601 // 单文件/单提交扫描失败，只记录不中断
	CodeStoreUnavailable    = 602 // 状态文件缺失或无法解析
	CodeStrategyExecution   = 603 // 重写/推送失败，可重试
	CodeQuotaExceeded       = 604 // 远端配额耗尽，全局暂停
	CodeMaxRetriesExceeded  = 605 // 达到重试上限
	CodeDestinationNotEmpty = 606 // 目标仓库已有内容
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回被包装的错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(Wrap(code, ...), ErrXxx) 成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 提取错误链上的第一个错误码，未知错误返回 CodeInternalError
func CodeOf(err error) int {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// 预定义错误
var (
	ErrBadRequest      = New(CodeBadRequest, "请求参数错误")
	ErrUnauthorized    = New(CodeUnauthorized, "未授权")
	ErrNotFound        = New(CodeNotFound, "资源不存在")
	ErrConflict        = New(CodeConflict, "资源冲突")
	ErrInternalError   = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError   = New(CodeDatabaseError, "数据库错误")
	ErrValidationError = New(CodeValidationError, "数据验证失败")

	ErrInvalidToken   = New(CodeUnauthorized, "无效的Token")
	ErrTokenExpired   = New(CodeUnauthorized, "Token已过期")
	ErrRecordNotFound = New(CodeNotFound, "记录不存在")

	// 迁移业务错误
	ErrMalformedSize       = New(CodeMalformedSize, "大小阈值格式错误")
	ErrScanFailure         = New(CodeScanFailure, "扫描失败")
	ErrStoreUnavailable    = New(CodeStoreUnavailable, "状态存储不可用")
	ErrStrategyExecution   = New(CodeStrategyExecution, "迁移策略执行失败")
	ErrQuotaExceeded       = New(CodeQuotaExceeded, "远端配额已耗尽")
	ErrMaxRetriesExceeded  = New(CodeMaxRetriesExceeded, "已达到最大重试次数")
	ErrDestinationNotEmpty = New(CodeDestinationNotEmpty, "目标仓库非空")
	ErrRunInProgress       = New(CodeConflict, "迁移任务正在运行")
)
