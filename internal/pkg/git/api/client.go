package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// Client 各平台共用的 REST 调用封装
// 负责认证头、限流识别、瞬时错误重试和 JSON 编解码
type Client struct {
	platform   PlatformType
	baseURL    string
	httpClient *http.Client
	authorize  func(req *http.Request)
	attempts   uint
	delay      time.Duration
	now        func() time.Time
}

// NewClient 创建 REST 客户端；authorize 负责设置平台特有的认证头
func NewClient(platform PlatformType, config *ProviderConfig, authorize func(req *http.Request)) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := config.Attempts
	if attempts == 0 {
		attempts = 3
	}
	delay := config.Delay
	if delay <= 0 {
		delay = time.Second
	}

	return &Client{
		platform: platform,
		baseURL:  strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		authorize: authorize,
		attempts:  attempts,
		delay:     delay,
		now:       time.Now,
	}
}

// BaseURL API 基础地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do 发送请求，2xx 时把响应体解码到 out（out 为 nil 时丢弃）
// 限流返回 *RateLimitError，其余非 2xx 返回 *StatusError；仅网络错误和 5xx 会重试
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		payload = data
	}

	return retry.Do(
		func() error {
			return c.do(ctx, method, path, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if rl := CheckRateLimit(c.platform, resp, c.now()); rl != nil {
		return rl
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// isTransient 网络错误和 5xx 可重试；限流、4xx 和 ctx 取消不重试
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := AsRateLimit(err); ok {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// FetchPages 逐页请求 path，直到某页条数少于 perPage
// path 需已包含每页条数参数，页码参数由这里追加
func FetchPages[T any](ctx context.Context, c *Client, path string, perPage int) ([]T, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	var all []T
	for page := 1; ; page++ {
		var items []T
		if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("%s%spage=%d", path, sep, page), nil, &items); err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < perPage {
			return all, nil
		}
	}
}

// AuthURL 在基础地址上拼接 owner/name.git 并写入认证信息
func AuthURL(base, owner, name, username, token string) string {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return fmt.Sprintf("%s/%s/%s.git", strings.TrimSuffix(base, "/"), owner, name)
	}
	if token != "" {
		if username == "" {
			u.User = url.User(token)
		} else {
			u.User = url.UserPassword(username, token)
		}
	}
	u.Path = fmt.Sprintf("%s/%s/%s.git", u.Path, owner, name)
	return u.String()
}
