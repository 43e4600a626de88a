package channels

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/types"
)

// slackAckReaction 确认回复时加的表情
const slackAckReaction = "white_check_mark"

// SlackChannel Slack 通道
type SlackChannel struct {
	*BaseChannelImpl
	client *slack.Client
	userID string

	mu        sync.Mutex
	channelID string
}

// SlackConfig Slack 配置
type SlackConfig struct {
	BaseChannelConfig
	Token     string
	ChannelID string
	UserID    string
	// APIURL 形如 "https://slack.com/api/"，为空使用官方地址
	APIURL string
}

// NewSlackChannel 创建 Slack 通道，不做网络请求
func NewSlackChannel(cfg SlackConfig) (*SlackChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	if strings.TrimSpace(cfg.ChannelID) == "" && strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("slack channel id or user id is required")
	}

	var options []slack.Option
	if cfg.APIURL != "" {
		options = append(options, slack.OptionAPIURL(cfg.APIURL))
	}

	return &SlackChannel{
		BaseChannelImpl: NewBaseChannelImpl(MessengerSlack, cfg.BaseChannelConfig),
		client:          slack.New(cfg.Token, options...),
		userID:          strings.TrimSpace(cfg.UserID),
		channelID:       strings.TrimSpace(cfg.ChannelID),
	}, nil
}

// SendPrompt 发送权限请求并等待文本回复
func (c *SlackChannel) SendPrompt(ctx context.Context, req *types.PermissionRequest, timeout time.Duration) (types.Decision, error) {
	return runPrompt(ctx, c.BaseChannelImpl, c, req, timeout)
}

// SendNotice 发送通知
func (c *SlackChannel) SendNotice(ctx context.Context, notice *Notice) error {
	_, err := c.post(ctx, renderNotice(markupSlack, notice))
	return err
}

// SendAutoApproved 发送自动放行通知
func (c *SlackChannel) SendAutoApproved(ctx context.Context, req *types.PermissionRequest) error {
	_, err := c.post(ctx, renderAutoApproved(markupSlack, req))
	return err
}

func (c *SlackChannel) markup() markup {
	return markupSlack
}

// postPrompt 发送提示和回复说明，轮询从提示消息之后开始
func (c *SlackChannel) postPrompt(ctx context.Context, text string, req *types.PermissionRequest) (string, ReplyPoller, error) {
	ts, err := c.post(ctx, text+"\n\n"+renderReplyHint(markupSlack, req.RequestID))
	if err != nil {
		return "", nil, err
	}
	channelID, err := c.conversation(ctx)
	if err != nil {
		return "", nil, err
	}
	return ts, &slackPoller{client: c.client, channelID: channelID, userID: c.userID, oldest: ts}, nil
}

// editPrompt 更新提示消息
func (c *SlackChannel) editPrompt(ctx context.Context, messageID string, text string) error {
	channelID, err := c.conversation(ctx)
	if err != nil {
		return err
	}
	_, _, _, err = c.client.UpdateMessageContext(ctx, channelID, messageID, slack.MsgOptionText(text, false))
	return err
}

// post 发送 mrkdwn 消息，返回消息 ts
func (c *SlackChannel) post(ctx context.Context, text string) (string, error) {
	channelID, err := c.conversation(ctx)
	if err != nil {
		return "", err
	}
	_, ts, err := c.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("failed to send slack message: %w", err)
	}
	return ts, nil
}

// conversation 返回目标会话；未配置 channel_id 时打开与 user_id 的私聊
func (c *SlackChannel) conversation(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID != "" {
		return c.channelID, nil
	}

	ch, _, _, err := c.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{c.userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open slack conversation with %s: %w", c.userID, err)
	}
	c.channelID = ch.ID
	return c.channelID, nil
}

// slackPoller 基于 conversations.history 的回复轮询器，oldest 为见过的最大 ts
//
// 配置了 userID 时只接受该用户的消息，共享频道里其他成员的回复会被跳过。
type slackPoller struct {
	client    *slack.Client
	channelID string
	userID    string

	mu     sync.Mutex
	oldest string
}

// Poll 读取 oldest 之后的消息，按时间升序返回
func (p *slackPoller) Poll(ctx context.Context) ([]bus.Reply, error) {
	p.mu.Lock()
	oldest := p.oldest
	p.mu.Unlock()

	resp, err := p.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: p.channelID,
		Oldest:    oldest,
		Limit:     100,
	})
	if err != nil {
		return nil, err
	}

	messages := resp.Messages
	sort.SliceStable(messages, func(i, j int) bool {
		return slackTS(messages[i].Timestamp) < slackTS(messages[j].Timestamp)
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	var replies []bus.Reply
	for _, msg := range messages {
		if slackTS(msg.Timestamp) <= slackTS(p.oldest) {
			continue
		}
		p.oldest = msg.Timestamp
		if p.userID != "" && msg.User != p.userID {
			continue
		}
		replies = append(replies, bus.Reply{
			Channel:   MessengerSlack,
			Kind:      bus.ReplyKindText,
			EventID:   msg.Timestamp,
			Cursor:    msg.Timestamp,
			ChatID:    p.channelID,
			MessageID: msg.Timestamp,
			SenderID:  msg.User,
			FromBot:   msg.BotID != "" || msg.SubType == "bot_message",
			Content:   msg.Text,
			Timestamp: slackTime(msg.Timestamp),
		})
	}
	return replies, nil
}

// Ack 给决定消息加表情
func (p *slackPoller) Ack(ctx context.Context, reply bus.Reply) error {
	return p.client.AddReactionContext(ctx, slackAckReaction, slack.NewRefToMessage(p.channelID, reply.MessageID))
}

// slackTS 把 "1700000000.000100" 解析为可比较的数值
func slackTS(ts string) float64 {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return 0
	}
	return f
}

func slackTime(ts string) time.Time {
	f := slackTS(ts)
	if f == 0 {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}
