package channels

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/types"
)

// Discord 单条消息长度上限
const discordMaxRunes = 2000

// discordAckReaction 确认回复时加的表情
const discordAckReaction = "✅"

// DiscordChannel Discord 通道，通过私聊发送
type DiscordChannel struct {
	*BaseChannelImpl
	session *discordgo.Session
	userID  string

	mu        sync.Mutex
	channelID string
}

// DiscordConfig Discord 配置
type DiscordConfig struct {
	BaseChannelConfig
	Token  string
	UserID string
}

// NewDiscordChannel 创建 Discord 通道，不建立 gateway 连接
func NewDiscordChannel(cfg DiscordConfig) (*DiscordChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("discord user id is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannelImpl: NewBaseChannelImpl(MessengerDiscord, cfg.BaseChannelConfig),
		session:         session,
		userID:          strings.TrimSpace(cfg.UserID),
	}, nil
}

// SendPrompt 发送权限请求并等待文本回复
func (c *DiscordChannel) SendPrompt(ctx context.Context, req *types.PermissionRequest, timeout time.Duration) (types.Decision, error) {
	return runPrompt(ctx, c.BaseChannelImpl, c, req, timeout)
}

// SendNotice 发送通知
func (c *DiscordChannel) SendNotice(ctx context.Context, notice *Notice) error {
	_, err := c.send(ctx, renderNotice(markupDiscord, notice))
	return err
}

// SendAutoApproved 发送自动放行通知
func (c *DiscordChannel) SendAutoApproved(ctx context.Context, req *types.PermissionRequest) error {
	_, err := c.send(ctx, renderAutoApproved(markupDiscord, req))
	return err
}

func (c *DiscordChannel) markup() markup {
	return markupDiscord
}

// postPrompt 发送提示和回复说明，轮询从提示消息之后开始
func (c *DiscordChannel) postPrompt(ctx context.Context, text string, req *types.PermissionRequest) (string, ReplyPoller, error) {
	msg, err := c.send(ctx, text+"\n\n"+renderReplyHint(markupDiscord, req.RequestID))
	if err != nil {
		return "", nil, err
	}
	return msg.ID, &discordPoller{session: c.session, channelID: msg.ChannelID, after: msg.ID}, nil
}

// editPrompt 编辑提示消息
func (c *DiscordChannel) editPrompt(ctx context.Context, messageID string, text string) error {
	channelID, err := c.dmChannel(ctx)
	if err != nil {
		return err
	}
	_, err = c.session.ChannelMessageEdit(channelID, messageID, clampDiscord(text), discordgo.WithContext(ctx))
	return err
}

// send 发送私聊消息
func (c *DiscordChannel) send(ctx context.Context, text string) (*discordgo.Message, error) {
	channelID, err := c.dmChannel(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := c.session.ChannelMessageSend(channelID, clampDiscord(text), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to send discord message: %w", err)
	}
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	return msg, nil
}

// dmChannel 获取与用户的私聊频道
func (c *DiscordChannel) dmChannel(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID != "" {
		return c.channelID, nil
	}

	ch, err := c.session.UserChannelCreate(c.userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create discord DM channel: %w", err)
	}
	c.channelID = ch.ID
	return c.channelID, nil
}

// clampDiscord 截断到 Discord 的消息长度上限
func clampDiscord(text string) string {
	runes := []rune(text)
	if len(runes) <= discordMaxRunes {
		return text
	}
	return string(runes[:discordMaxRunes-3]) + "..."
}

// discordPoller 基于 channel messages 的回复轮询器，after 为见过的最大 snowflake
type discordPoller struct {
	session   *discordgo.Session
	channelID string

	mu    sync.Mutex
	after string
}

// Poll 读取 after 之后的消息，按 snowflake 升序返回
func (p *discordPoller) Poll(ctx context.Context) ([]bus.Reply, error) {
	p.mu.Lock()
	after := p.after
	p.mu.Unlock()

	messages, err := p.session.ChannelMessages(p.channelID, 100, "", after, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return snowflake(messages[i].ID) < snowflake(messages[j].ID)
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	var replies []bus.Reply
	for _, msg := range messages {
		if snowflake(msg.ID) <= snowflake(p.after) {
			continue
		}
		p.after = msg.ID

		reply := bus.Reply{
			Channel:   MessengerDiscord,
			Kind:      bus.ReplyKindText,
			EventID:   msg.ID,
			Cursor:    msg.ID,
			ChatID:    p.channelID,
			MessageID: msg.ID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
		if msg.Author != nil {
			reply.SenderID = msg.Author.ID
			reply.FromBot = msg.Author.Bot
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// Ack 给决定消息加表情
func (p *discordPoller) Ack(ctx context.Context, reply bus.Reply) error {
	return p.session.MessageReactionAdd(p.channelID, reply.MessageID, discordAckReaction, discordgo.WithContext(ctx))
}

// snowflake 解析 Discord ID，无法解析时为 0
func snowflake(id string) uint64 {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
