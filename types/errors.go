package types

import (
	"context"
	"errors"
	"strings"
)

// ErrorReason 传输错误分类
type ErrorReason string

const (
	// ErrorReasonAuth 认证错误（token 失效、bot 被拉黑）
	ErrorReasonAuth ErrorReason = "auth"
	// ErrorReasonNotFound 目标会话或用户不存在
	ErrorReasonNotFound ErrorReason = "not_found"
	// ErrorReasonRateLimit 速率限制
	ErrorReasonRateLimit ErrorReason = "rate_limit"
	// ErrorReasonTimeout 超时
	ErrorReasonTimeout ErrorReason = "timeout"
	// ErrorReasonUnknown 未知错误
	ErrorReasonUnknown ErrorReason = "unknown"
)

// ErrorClassifier 错误分类器接口
type ErrorClassifier interface {
	ClassifyError(err error) ErrorReason
	IsPermanent(err error) bool
}

// SimpleErrorClassifier 基于错误文本的分类器
//
// Telegram、Slack、Discord 三个 SDK 的错误类型各不相同，但错误文本足够稳定。
type SimpleErrorClassifier struct {
	authPatterns      []string
	notFoundPatterns  []string
	rateLimitPatterns []string
	timeoutPatterns   []string
}

// NewSimpleErrorClassifier 创建简单错误分类器
func NewSimpleErrorClassifier() *SimpleErrorClassifier {
	return &SimpleErrorClassifier{
		authPatterns: []string{
			"unauthorized", "invalid_auth", "not_authed", "account_inactive",
			"token_revoked", "invalid token", "bot was blocked", "forbidden",
			"401", "403",
		},
		notFoundPatterns: []string{
			"chat not found", "channel_not_found", "user_not_found",
			"unknown channel", "unknown user", "404",
		},
		rateLimitPatterns: []string{
			"rate limit", "ratelimited", "too many requests", "429",
		},
		timeoutPatterns: []string{
			"timeout", "timed out", "deadline exceeded",
		},
	}
}

// ClassifyError 分类错误
func (c *SimpleErrorClassifier) ClassifyError(err error) ErrorReason {
	if err == nil {
		return ErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorReasonTimeout
	}

	errMsg := strings.ToLower(err.Error())

	if c.matchesAny(errMsg, c.authPatterns) {
		return ErrorReasonAuth
	}
	if c.matchesAny(errMsg, c.notFoundPatterns) {
		return ErrorReasonNotFound
	}
	if c.matchesAny(errMsg, c.rateLimitPatterns) {
		return ErrorReasonRateLimit
	}
	if c.matchesAny(errMsg, c.timeoutPatterns) {
		return ErrorReasonTimeout
	}

	return ErrorReasonUnknown
}

// IsPermanent 重试也不会成功的错误：认证失败或目标不存在
func (c *SimpleErrorClassifier) IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch c.ClassifyError(err) {
	case ErrorReasonAuth, ErrorReasonNotFound:
		return true
	default:
		return false
	}
}

// matchesAny 检查错误消息是否匹配任何模式
func (c *SimpleErrorClassifier) matchesAny(errMsg string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
