package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"go.uber.org/zap"
)

// permissionEventName PermissionRequest hook 的事件名
const permissionEventName = "PermissionRequest"

// PermissionResponse hook 输出
type PermissionResponse struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput hook 输出主体
type HookSpecificOutput struct {
	HookEventName string         `json:"hookEventName"`
	Decision      DecisionOutput `json:"decision"`
}

// DecisionOutput 决定
type DecisionOutput struct {
	Behavior string `json:"behavior"`
}

// Response 把决定转成 hook 输出，AlwaysAllow 输出为 allow
func Response(d types.Decision) *PermissionResponse {
	return &PermissionResponse{
		HookSpecificOutput: HookSpecificOutput{
			HookEventName: permissionEventName,
			Decision:      DecisionOutput{Behavior: d.Behavior()},
		},
	}
}

// WriteResponse 把 hook 输出写成一行 JSON
func WriteResponse(w io.Writer, d types.Decision) error {
	data, err := json.Marshal(Response(d))
	if err != nil {
		return fmt.Errorf("failed to marshal hook response: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("failed to write hook response: %w", err)
	}
	return nil
}

// HandlePermission 处理权限请求
//
// 在 allow-list 中的工具直接放行；否则发送提示并等待决定。
// AlwaysAllow 会把工具加入 allow-list，并以 Allow 返回。
func (h *Handler) HandlePermission(ctx context.Context, in *bus.PermissionInput) (types.Decision, error) {
	req := types.NewPermissionRequest(in.ToolName, in.ToolInput, h.hostname)

	channel, err := h.channels.Primary()
	if err != nil {
		return types.DecisionDeny, err
	}

	log := logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("tool", req.ToolName),
		zap.String("channel", channel.Name()),
	)

	if h.allowlist != nil && h.allowlist.IsAllowed(req.ToolName) {
		if err := channel.SendAutoApproved(ctx, req); err != nil {
			log.Warn("Failed to send auto-approved notice", zap.Error(err))
		}
		log.Info("Tool auto-approved by allow-list")
		return types.DecisionAllow, nil
	}

	decision, err := channel.SendPrompt(ctx, req, h.timeout)
	if err != nil {
		return types.DecisionDeny, err
	}

	if decision == types.DecisionAlwaysAllow {
		if h.allowlist != nil {
			if err := h.allowlist.Add(req.ToolName); err != nil {
				log.Warn("Failed to add tool to allow-list", zap.Error(err))
			}
		}
		decision = types.DecisionAllow
	}

	log.Info("Permission request resolved", zap.String("decision", decision.String()))
	return decision, nil
}
