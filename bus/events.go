package bus

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// PermissionInput PermissionRequest hook 输入
type PermissionInput struct {
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	Cwd           string          `json:"cwd"`
}

// StopInput Stop hook 输入
type StopInput struct {
	SessionID      string `json:"session_id"`
	HookEventName  string `json:"hook_event_name"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// NotificationInput Notification hook 输入
type NotificationInput struct {
	SessionID        string `json:"session_id"`
	HookEventName    string `json:"hook_event_name"`
	NotificationType string `json:"notification_type"`
	Message          string `json:"message"`
	Cwd              string `json:"cwd"`
}

// Decode 从 r 读取一个 hook JSON 文档
func Decode(r io.Reader, v interface{}) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read hook input: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return fmt.Errorf("hook input is empty")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid hook input: %w", err)
	}
	return nil
}

// ProjectName 从工作目录取项目名
func ProjectName(cwd string) string {
	cwd = strings.TrimRight(strings.TrimSpace(cwd), `/\`)
	if cwd == "" {
		return "Unknown"
	}
	name := filepath.Base(filepath.FromSlash(cwd))
	if name == "." || name == string(filepath.Separator) {
		return "Unknown"
	}
	return name
}

// ReplyKind 回复类型
type ReplyKind string

const (
	// ReplyKindCallback 按钮回调
	ReplyKindCallback ReplyKind = "callback"
	// ReplyKindText 文本消息
	ReplyKindText ReplyKind = "text"
)

// Reply 轮询器从聊天平台读到的一条入站事件
type Reply struct {
	Channel   string    `json:"channel"`    // telegram, slack, discord
	Kind      ReplyKind `json:"kind"`       // callback, text
	EventID   string    `json:"event_id"`   // 平台事件ID（callback id、消息 ID 或 ts）
	Cursor    string    `json:"cursor"`     // 轮询游标（update id、消息 ts、snowflake）
	ChatID    string    `json:"chat_id"`    // 会话ID
	MessageID string    `json:"message_id"` // 回复所在消息ID
	SenderID  string    `json:"sender_id"`  // 发送者ID
	FromBot   bool      `json:"from_bot"`   // 是否由 bot 发出
	Content   string    `json:"content"`    // 回调数据或消息文本
	Timestamp time.Time `json:"timestamp"`
}
