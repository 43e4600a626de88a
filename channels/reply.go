package channels

import (
	"strings"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/types"
)

// 回调数据中的动作名
const (
	callbackAllow       = "allow"
	callbackDeny        = "deny"
	callbackAlwaysAllow = "always_allow"
)

// CallbackData 生成按钮回调数据 "<id>:<action>"
//
// Telegram 限制回调数据 64 字节，所以不带工具名。
func CallbackData(requestID string, decision types.Decision) string {
	action := callbackDeny
	switch decision {
	case types.DecisionAllow:
		action = callbackAllow
	case types.DecisionAlwaysAllow:
		action = callbackAlwaysAllow
	}
	return requestID + ":" + action
}

// ParseCallbackData 解析 "<id>:allow|deny|always_allow[:tool]"
func ParseCallbackData(data string) (string, types.Decision, bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 {
		return "", types.DecisionDeny, false
	}
	id := parts[0]
	if !types.ValidRequestID(id) {
		return "", types.DecisionDeny, false
	}

	switch parts[1] {
	case callbackAllow:
		return id, types.DecisionAllow, true
	case callbackDeny:
		return id, types.DecisionDeny, true
	case callbackAlwaysAllow:
		return id, types.DecisionAlwaysAllow, true
	default:
		return "", types.DecisionDeny, false
	}
}

// ParseTextReply 解析文本回复 "ALLOW|DENY|ALWAYS <id>"
//
// 关键字不区分大小写，ID 区分大小写，多余的词忽略。
func ParseTextReply(text string) (string, types.Decision, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", types.DecisionDeny, false
	}

	var decision types.Decision
	switch strings.ToUpper(fields[0]) {
	case "ALLOW":
		decision = types.DecisionAllow
	case "DENY":
		decision = types.DecisionDeny
	case "ALWAYS":
		decision = types.DecisionAlwaysAllow
	default:
		return "", types.DecisionDeny, false
	}

	id := fields[1]
	if !types.ValidRequestID(id) {
		return "", types.DecisionDeny, false
	}
	return id, decision, true
}

// ParseReply 按回复类型解析决定
func ParseReply(r bus.Reply) (string, types.Decision, bool) {
	if r.FromBot {
		return "", types.DecisionDeny, false
	}
	switch r.Kind {
	case bus.ReplyKindCallback:
		return ParseCallbackData(r.Content)
	case bus.ReplyKindText:
		return ParseTextReply(r.Content)
	default:
		return "", types.DecisionDeny, false
	}
}
