// Package hooks 实现三种 hook 事件的处理流程：权限请求、任务完成和通知。
package hooks

import (
	"time"

	"github.com/smallnest/hookrelay/allowlist"
	"github.com/smallnest/hookrelay/channels"
)

// ChannelSelector 选择用于发送的通道
type ChannelSelector interface {
	Primary() (channels.Channel, error)
}

// Handler hook 处理器
type Handler struct {
	channels  ChannelSelector
	allowlist *allowlist.Store
	hostname  string
	timeout   time.Duration
}

// NewHandler 创建 hook 处理器
func NewHandler(selector ChannelSelector, store *allowlist.Store, hostname string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = channels.DefaultWaitTimeout
	}
	return &Handler{
		channels:  selector,
		allowlist: store,
		hostname:  hostname,
		timeout:   timeout,
	}
}
