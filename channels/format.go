package channels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/smallnest/hookrelay/types"
	"github.com/tidwall/gjson"
)

// 截断长度（rune）
const (
	maxCommandRunes = 500
	maxEditRunes    = 200
	maxInputRunes   = 500
)

// markup 各平台的消息标记方言
type markup int

const (
	// markupHTML Telegram parse_mode=HTML
	markupHTML markup = iota
	// markupSlack Slack mrkdwn
	markupSlack
	// markupDiscord Discord markdown
	markupDiscord
)

// escape 转义普通文本
func (m markup) escape(s string) string {
	switch m {
	case markupHTML:
		return html.EscapeString(s)
	case markupSlack:
		r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
		return r.Replace(s)
	default:
		return s
	}
}

func (m markup) bold(s string) string {
	switch m {
	case markupHTML:
		return "<b>" + s + "</b>"
	case markupSlack:
		return "*" + s + "*"
	default:
		return "**" + s + "**"
	}
}

func (m markup) italic(s string) string {
	switch m {
	case markupHTML:
		return "<i>" + s + "</i>"
	default:
		return "_" + s + "_"
	}
}

// code 行内代码，内容会被转义
func (m markup) code(s string) string {
	switch m {
	case markupHTML:
		return "<code>" + html.EscapeString(s) + "</code>"
	default:
		return "`" + strings.ReplaceAll(m.escape(s), "`", "'") + "`"
	}
}

// block 代码块，内容会被转义
func (m markup) block(s string) string {
	switch m {
	case markupHTML:
		return "<pre>" + html.EscapeString(s) + "</pre>"
	default:
		return "```\n" + strings.ReplaceAll(m.escape(s), "```", "'''") + "\n```"
	}
}

// label 形如 "<b>Host:</b> value"
func (m markup) label(name, value string) string {
	return m.bold(m.escape(name)+":") + " " + value
}

// renderPrompt 渲染权限请求
func renderPrompt(m markup, req *types.PermissionRequest) string {
	lines := []string{
		"🔐 " + m.bold("Permission Request") + " " + m.code("["+req.RequestID+"]"),
		"🖥️ " + m.label("Host", m.code(req.Hostname)),
		"",
		m.label("Tool", m.code(req.ToolName)),
	}
	lines = append(lines, renderToolDetails(m, req, true)...)
	return strings.Join(lines, "\n")
}

// renderAutoApproved 渲染自动放行通知
func renderAutoApproved(m markup, req *types.PermissionRequest) string {
	lines := []string{
		"⚙️ " + m.bold("Auto-Approved") + " " + m.code("["+req.RequestID+"]"),
		"🖥️ " + m.label("Host", m.code(req.Hostname)),
		"",
		m.label("Tool", m.code(req.ToolName)) + " " + m.italic("(in always-allow list)"),
	}
	lines = append(lines, renderToolDetails(m, req, false)...)
	return strings.Join(lines, "\n")
}

// renderToolDetails 按工具类型渲染输入；withEdit 时 Edit 额外显示新旧文本
func renderToolDetails(m markup, req *types.PermissionRequest, withEdit bool) []string {
	input := string(req.ToolInput)
	var lines []string

	switch req.ToolName {
	case "Bash":
		if cmd := gjson.Get(input, "command"); cmd.Type == gjson.String {
			lines = append(lines, m.bold("Command:")+"\n"+m.block(types.Truncate(cmd.String(), maxCommandRunes)))
		}
	case "Edit", "Write":
		if path := gjson.Get(input, "file_path"); path.Type == gjson.String {
			lines = append(lines, m.label("File", m.code(path.String())))
		}
		if withEdit && req.ToolName == "Edit" {
			if old := gjson.Get(input, "old_string"); old.Type == gjson.String {
				lines = append(lines, m.bold("Old:")+"\n"+m.block(types.Truncate(old.String(), maxEditRunes)))
			}
			if nw := gjson.Get(input, "new_string"); nw.Type == gjson.String {
				lines = append(lines, m.bold("New:")+"\n"+m.block(types.Truncate(nw.String(), maxEditRunes)))
			}
		}
	default:
		lines = append(lines, m.bold("Input:")+"\n"+m.block(types.Truncate(prettyJSON(req.ToolInput), maxInputRunes)))
	}
	return lines
}

// prettyJSON 缩进 JSON，无法解析时原样返回
func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// renderReplyHint 文本回复方式的说明
func renderReplyHint(m markup, requestID string) string {
	return fmt.Sprintf("%s %s · %s · %s",
		m.bold("Reply with:"),
		m.code("ALLOW "+requestID),
		m.code("DENY "+requestID),
		m.code("ALWAYS "+requestID),
	)
}

// renderNotice 渲染通知
func renderNotice(m markup, n *Notice) string {
	lines := []string{strings.TrimSpace(n.Icon + " " + m.bold(m.escape(n.Title)))}
	if len(n.Fields) > 0 {
		lines = append(lines, "")
		for _, f := range n.Fields {
			lines = append(lines, m.label(f.Name, m.escape(f.Value)))
		}
	}
	if strings.TrimSpace(n.Body) != "" {
		body := m.escape(n.Body)
		if n.BodyLabel != "" {
			body = m.bold(m.escape(n.BodyLabel)+":") + "\n" + body
		}
		lines = append(lines, "", body)
	}
	return strings.Join(lines, "\n")
}

// promptStatus 提示消息的最终状态
type promptStatus int

const (
	statusApproved promptStatus = iota
	statusDenied
	statusAlwaysAllowed
	statusTimeout
	statusError
)

// statusFor 决定对应的状态
func statusFor(d types.Decision) promptStatus {
	switch d {
	case types.DecisionAllow:
		return statusApproved
	case types.DecisionAlwaysAllow:
		return statusAlwaysAllowed
	default:
		return statusDenied
	}
}

// renderStatus 渲染状态行
func renderStatus(m markup, s promptStatus, toolName string) string {
	var text string
	switch s {
	case statusApproved:
		text = "✅ Approved"
	case statusDenied:
		text = "❌ Denied"
	case statusAlwaysAllowed:
		text = "🔓 Always Allowed (" + m.code(toolName) + " added to list)"
	case statusTimeout:
		text = "⏱️ Timeout - Denied"
	default:
		text = "❌ Error"
	}
	return m.bold("Status:") + " " + text
}
