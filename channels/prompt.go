package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"go.uber.org/zap"
)

// finalEditTimeout 最终状态编辑的超时时间
const finalEditTimeout = 10 * time.Second

// promptTransport 各平台发送和编辑提示消息的最小接口
type promptTransport interface {
	markup() markup

	// postPrompt 发送提示消息，返回消息 ID 和从该消息之后读取回复的轮询器
	postPrompt(ctx context.Context, text string, req *types.PermissionRequest) (string, ReplyPoller, error)

	// editPrompt 把提示消息替换为 text，并移除决策控件
	editPrompt(ctx context.Context, messageID string, text string) error
}

// runPrompt 发送提示、等待决定、编辑最终状态
func runPrompt(ctx context.Context, base *BaseChannelImpl, t promptTransport, req *types.PermissionRequest, timeout time.Duration) (types.Decision, error) {
	m := t.markup()
	text := renderPrompt(m, req)

	messageID, poller, err := t.postPrompt(ctx, text, req)
	if err != nil {
		return types.DecisionDeny, fmt.Errorf("failed to send %s prompt: %w", base.Name(), err)
	}

	logger.Info("Permission prompt sent",
		zap.String("channel", base.Name()),
		zap.String("request_id", req.RequestID),
		zap.String("tool", req.ToolName),
		zap.String("message_id", messageID),
	)

	decision, waitErr := WaitForDecision(ctx, poller, ParseReply, req.RequestID, base.waitOptions(timeout))

	status := statusFor(decision)
	switch {
	case errors.Is(waitErr, ErrWaitTimeout):
		logger.Info("Permission request timed out",
			zap.String("channel", base.Name()),
			zap.String("request_id", req.RequestID),
			zap.Duration("timeout", timeout),
		)
		decision, waitErr, status = types.DecisionDeny, nil, statusTimeout
	case waitErr != nil:
		decision, status = types.DecisionDeny, statusError
	}

	// Always Allowed 状态在调用方写入 allow-list 之前就已编辑；写入失败只记录日志，本次仍然放行
	// 父 context 可能已取消，编辑仍然要尽量完成
	editCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalEditTimeout)
	defer cancel()
	final := text + "\n\n" + renderStatus(m, status, req.ToolName)
	if err := t.editPrompt(editCtx, messageID, final); err != nil {
		logger.Warn("Failed to update prompt status",
			zap.String("channel", base.Name()),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
	}

	if waitErr != nil {
		return types.DecisionDeny, waitErr
	}
	return decision, nil
}
