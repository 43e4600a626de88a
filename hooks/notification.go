package hooks

import (
	"context"
	"strings"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/channels"
	"github.com/smallnest/hookrelay/types"
)

// maxNotificationRunes 通知消息的最大长度
const maxNotificationRunes = 500

// 通知类型
const (
	NotificationPermissionPrompt = "permission_prompt"
	NotificationIdlePrompt       = "idle_prompt"
)

// NotificationLabel 通知类型对应的图标和标题
func NotificationLabel(notificationType string) (string, string) {
	switch notificationType {
	case NotificationPermissionPrompt:
		return "🔐", "Permission Required"
	case NotificationIdlePrompt:
		return "💤", "Idle - Waiting for Input"
	default:
		return "📢", "Notification"
	}
}

// HandleNotification 转发 Notification 事件
func (h *Handler) HandleNotification(ctx context.Context, in *bus.NotificationInput) error {
	icon, title := NotificationLabel(in.NotificationType)

	notice := &channels.Notice{
		Icon:   icon,
		Title:  title,
		Fields: []channels.Field{{Name: "🖥️ Host", Value: h.hostname}},
	}
	if strings.TrimSpace(in.Cwd) != "" {
		notice.Fields = append(notice.Fields, channels.Field{Name: "📁 Project", Value: bus.ProjectName(in.Cwd)})
	}
	if in.Message != "" {
		notice.Body = types.Truncate(in.Message, maxNotificationRunes)
	}

	return h.sendNotice(ctx, notice)
}
