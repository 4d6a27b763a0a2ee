package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"repo-migrator/internal/core/migration"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotifyRunComplete    NotificationType = "run_complete"    // 运行结束，全部成功
	NotifyRunWithFailure NotificationType = "run_failure"     // 运行结束，有仓库失败
	NotifyRunInterrupted NotificationType = "run_interrupted" // 运行被中断
	NotifyRunError       NotificationType = "run_error"       // 运行无法进行（如状态表不可用）
)

// NotificationMessage 通知消息
type NotificationMessage struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"` // 额外信息
}

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, msg *NotificationMessage) error
}

// RunMessage 根据运行结果构造通知
func RunMessage(report *migration.RunReport, runErr error) *NotificationMessage {
	msg := &NotificationMessage{
		Timestamp: time.Now(),
		Extra:     map[string]interface{}{},
	}
	if report == nil {
		report = &migration.RunReport{}
	}
	msg.Extra["run_id"] = report.RunID

	switch {
	case report.Interrupted:
		msg.Type, msg.Title = NotifyRunInterrupted, "⏸ 仓库迁移被中断"
		msg.Extra["color"] = "orange"
	case runErr != nil:
		msg.Type, msg.Title = NotifyRunError, "❌ 仓库迁移无法进行"
		msg.Extra["color"] = "red"
	case report.Failed > 0:
		msg.Type, msg.Title = NotifyRunWithFailure, "⚠️ 仓库迁移完成，有失败"
		msg.Extra["color"] = "yellow"
	default:
		msg.Type, msg.Title = NotifyRunComplete, "✅ 仓库迁移完成"
		msg.Extra["color"] = "green"
	}

	msg.Content = fmt.Sprintf("**运行**: %s\n**待迁移**: %d\n**成功**: %d\n**失败**: %d\n**配额暂停**: %d 次",
		report.RunID, report.Pending, report.Completed, report.Failed, report.QuotaPauses)
	if runErr != nil {
		msg.Content += fmt.Sprintf("\n**错误**: %v", runErr)
	}
	return msg
}

// ============= Lark 通知适配器 =============

// LarkNotifier Lark通知器
type LarkNotifier struct {
	webhookURL string
	logger     *zap.Logger
	client     *http.Client
}

// NewLarkNotifier 创建Lark通知器
func NewLarkNotifier(webhookURL string, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		webhookURL: webhookURL,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send 发送通知
func (n *LarkNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	jsonData, err := json.Marshal(n.buildLarkMessage(msg))
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Lark API返回错误状态码: %d", resp.StatusCode)
	}

	n.logger.Info("Lark通知发送成功",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title))
	return nil
}

// buildLarkMessage 构建Lark卡片消息
func (n *LarkNotifier) buildLarkMessage(msg *NotificationMessage) map[string]interface{} {
	color := "grey"
	if c, ok := msg.Extra["color"].(string); ok {
		color = c
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": msg.Title,
				},
				"template": color,
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "lark_md",
						"content": msg.Content,
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "plain_text",
						"content": fmt.Sprintf("时间: %s", msg.Timestamp.Format("2006-01-02 15:04:05")),
					},
				},
			},
		},
	}
}

// ============= 多通知器 =============

// MultiNotifier 同时发送到多个渠道，单个渠道失败不影响其他渠道
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier 创建多通知器
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		logger:    logger,
	}
}

// Send 发送到所有通知器，返回最后一个错误
func (m *MultiNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, msg); err != nil {
			m.logger.Error("发送通知失败", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}
