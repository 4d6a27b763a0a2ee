package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	pkgErrors "repo-migrator/pkg/errors"
)

// defaultQuotaWindow 平台未给出重置时间时的等待窗口
const defaultQuotaWindow = time.Minute

// RateLimitError 平台配额耗尽，ResetAt 之后才能继续请求
type RateLimitError struct {
	Platform PlatformType
	ResetAt  time.Time
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s 配额已耗尽，重置时间 %s: %v", e.Platform, e.ResetAt.Format(time.RFC3339), e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, pkgErrors.ErrQuotaExceeded) 成立
func (e *RateLimitError) Is(target error) bool {
	var appErr *pkgErrors.AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return appErr.Code == pkgErrors.CodeQuotaExceeded
}

// AsRateLimit 从错误链中取出 RateLimitError
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// StatusError 非预期的 HTTP 状态码
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("请求失败 (状态码: %d): %s", e.StatusCode, e.Body)
}

// IsStatus 错误是否为指定状态码
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// CheckRateLimit 判断响应是否表示配额耗尽
// 429 一律视为限流；403 仅在剩余额度为 0 或带 Retry-After 时视为限流（GitHub 的主/次级限流）
func CheckRateLimit(platform PlatformType, resp *http.Response, now time.Time) *RateLimitError {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") != "0" && resp.Header.Get("Retry-After") == "" {
			return nil
		}
	default:
		return nil
	}

	return &RateLimitError{
		Platform: platform,
		ResetAt:  resetTime(resp.Header, now),
		Err:      fmt.Errorf("状态码 %d", resp.StatusCode),
	}
}

// resetTime 依次识别 Retry-After、X-RateLimit-Reset（GitHub/Gitea）、RateLimit-Reset（GitLab）
func resetTime(h http.Header, now time.Time) time.Time {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(v); err == nil {
			return t
		}
	}
	for _, key := range []string{"X-RateLimit-Reset", "RateLimit-Reset"} {
		if v := h.Get(key); v != "" {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.Unix(unix, 0)
			}
		}
	}
	return now.Add(defaultQuotaWindow)
}
