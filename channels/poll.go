package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"go.uber.org/zap"
)

// 轮询默认值
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultWaitTimeout  = 300 * time.Second
)

// ErrWaitTimeout 等待决定超时
var ErrWaitTimeout = errors.New("timed out waiting for decision")

// ReplyPoller 读取某个会话的新回复
//
// 游标由实现自己维护：每次 Poll 返回的事件不会再次返回。
type ReplyPoller interface {
	Poll(ctx context.Context) ([]bus.Reply, error)
	// Ack 确认已处理的决定回复（例如应答回调或加表情）
	Ack(ctx context.Context, reply bus.Reply) error
}

// ReplyKeeper 可选接口：保留属于其他请求的决定回复
type ReplyKeeper interface {
	Keep(reply bus.Reply)
}

// ReplyParser 从回复中解析请求 ID 和决定
type ReplyParser func(reply bus.Reply) (string, types.Decision, bool)

// WaitOptions 等待参数
type WaitOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	Classifier types.ErrorClassifier
}

// WaitForDecision 轮询直到读到 requestID 的决定
//
// 自身超时返回 ErrWaitTimeout；父 context 取消返回 ctx.Err()；
// 永久性错误（认证失败、会话不存在）直接返回，其余错误记录后继续轮询。
func WaitForDecision(ctx context.Context, poller ReplyPoller, parse ReplyParser, requestID string, opts WaitOptions) (types.Decision, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}
	if opts.Classifier == nil {
		opts.Classifier = types.NewSimpleErrorClassifier()
	}
	if parse == nil {
		parse = ParseReply
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		decision, found, err := pollOnce(waitCtx, poller, parse, requestID, opts.Classifier)
		if err != nil {
			return types.DecisionDeny, err
		}
		if found {
			return decision, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return types.DecisionDeny, ctx.Err()
			}
			return types.DecisionDeny, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// pollOnce 读取一批回复并查找匹配的决定
func pollOnce(ctx context.Context, poller ReplyPoller, parse ReplyParser, requestID string, classifier types.ErrorClassifier) (types.Decision, bool, error) {
	replies, err := poller.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return types.DecisionDeny, false, nil
		}
		if classifier.IsPermanent(err) {
			return types.DecisionDeny, false, fmt.Errorf("failed to poll replies: %w", err)
		}
		logger.Warn("Poll replies failed, retrying",
			zap.String("request_id", requestID),
			zap.String("reason", string(classifier.ClassifyError(err))),
			zap.Error(err),
		)
		return types.DecisionDeny, false, nil
	}

	for _, reply := range replies {
		id, decision, ok := parse(reply)
		if !ok {
			continue
		}
		if id != requestID {
			if keeper, ok := poller.(ReplyKeeper); ok {
				keeper.Keep(reply)
			}
			logger.Debug("Skipping decision for another request",
				zap.String("request_id", requestID),
				zap.String("reply_request_id", id),
			)
			continue
		}

		if err := poller.Ack(ctx, reply); err != nil {
			logger.Warn("Failed to acknowledge reply",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
		return decision, true, nil
	}
	return types.DecisionDeny, false, nil
}
