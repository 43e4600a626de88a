package channels

import (
	"context"
	"errors"
	"time"

	"github.com/smallnest/hookrelay/types"
)

// ErrNoChannel 没有可用的消息平台
var ErrNoChannel = errors.New("no messenger configured")

// Channel 决策通道：把权限请求发到聊天平台并等待人工回复
type Channel interface {
	// Name 返回通道名称
	Name() string

	// SendPrompt 发送带决策控件的权限请求，阻塞直到收到回复或超时
	//
	// 超时返回 DecisionDeny 且 error 为 nil；传输错误返回 error。
	SendPrompt(ctx context.Context, req *types.PermissionRequest, timeout time.Duration) (types.Decision, error)

	// SendNotice 发送一条不需要回复的通知
	SendNotice(ctx context.Context, notice *Notice) error

	// SendAutoApproved 通知某个请求因 allow-list 被自动放行
	SendAutoApproved(ctx context.Context, req *types.PermissionRequest) error
}

// Field 通知中的一个键值行
type Field struct {
	Name  string
	Value string
}

// Notice 通知内容，由各平台按自己的 markup 渲染
type Notice struct {
	Icon   string
	Title  string
	Fields []Field
	// BodyLabel 非空时作为正文的小标题，例如 "Summary"
	BodyLabel string
	Body      string
}

// BaseChannelConfig 通道公共配置
type BaseChannelConfig struct {
	PollInterval time.Duration
	Classifier   types.ErrorClassifier
}

// BaseChannelImpl 通道基础实现
type BaseChannelImpl struct {
	name   string
	config BaseChannelConfig
}

// NewBaseChannelImpl 创建通道基础实现
func NewBaseChannelImpl(name string, config BaseChannelConfig) *BaseChannelImpl {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Classifier == nil {
		config.Classifier = types.NewSimpleErrorClassifier()
	}
	return &BaseChannelImpl{
		name:   name,
		config: config,
	}
}

// Name 返回通道名称
func (c *BaseChannelImpl) Name() string {
	return c.name
}

// waitOptions 构造等待参数
func (c *BaseChannelImpl) waitOptions(timeout time.Duration) WaitOptions {
	return WaitOptions{
		Interval:   c.config.PollInterval,
		Timeout:    timeout,
		Classifier: c.config.Classifier,
	}
}
