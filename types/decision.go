package types

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// RequestIDLength 请求 ID 长度（UUID v4 前缀）
const RequestIDLength = 8

// Decision 用户对权限请求的决定
type Decision int

const (
	// DecisionDeny 拒绝，也是超时的默认结果
	DecisionDeny Decision = iota
	// DecisionAllow 允许本次请求
	DecisionAllow
	// DecisionAlwaysAllow 允许本次请求，并把工具加入 allow-list
	DecisionAlwaysAllow
)

// String 返回决定名称
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionAlwaysAllow:
		return "always_allow"
	default:
		return "deny"
	}
}

// Behavior 返回对外输出的行为，AlwaysAllow 折叠为 allow
func (d Decision) Behavior() string {
	switch d {
	case DecisionAllow, DecisionAlwaysAllow:
		return "allow"
	default:
		return "deny"
	}
}

// PermissionRequest 一次权限请求
type PermissionRequest struct {
	RequestID string
	ToolName  string
	ToolInput json.RawMessage
	Hostname  string
}

// NewPermissionRequest 创建权限请求，并生成新的请求 ID
func NewPermissionRequest(toolName string, toolInput json.RawMessage, hostname string) *PermissionRequest {
	toolName = strings.TrimSpace(toolName)
	if toolName == "" {
		toolName = "unknown"
	}
	if len(toolInput) == 0 {
		toolInput = json.RawMessage("{}")
	}
	return &PermissionRequest{
		RequestID: NewRequestID(),
		ToolName:  toolName,
		ToolInput: toolInput,
		Hostname:  hostname,
	}
}

// NewRequestID 生成短请求 ID：随机 UUID 的前 8 个十六进制字符
func NewRequestID() string {
	return uuid.NewString()[:RequestIDLength]
}

// ValidRequestID 检查回复中携带的请求 ID 是否形如我们生成的 token
func ValidRequestID(id string) bool {
	if len(id) < 4 || len(id) > 32 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
