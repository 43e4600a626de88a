package channels

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	telegrambot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"go.uber.org/zap"
)

// foreignRetention 其他请求的决定更新最多保留多久不确认
const foreignRetention = 10 * time.Minute

// telegramUpdateLimit 每次 getUpdates 最多返回的更新数
const telegramUpdateLimit = 100

// telegramAllowedUpdates 轮询时关心的更新类型
var telegramAllowedUpdates = []string{"callback_query", "message"}

// TelegramChannel Telegram 通道
type TelegramChannel struct {
	*BaseChannelImpl
	bot    *telegrambot.BotAPI
	chatID int64
}

// TelegramConfig Telegram 配置
type TelegramConfig struct {
	BaseChannelConfig
	Token  string
	ChatID int64
	// APIEndpoint 形如 "https://api.telegram.org/bot%s/%s"，为空使用官方地址
	APIEndpoint string
	HTTPClient  telegrambot.HTTPClient
}

// NewTelegramChannel 创建 Telegram 通道，不做网络请求
//
// ChatID 可以为 0，此时只能运行 RunBot 来查询 chat id。
func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	bot := &telegrambot.BotAPI{
		Token:  cfg.Token,
		Client: client,
		Buffer: 100,
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = telegrambot.APIEndpoint
	}
	bot.SetAPIEndpoint(endpoint)

	return &TelegramChannel{
		BaseChannelImpl: NewBaseChannelImpl(MessengerTelegram, cfg.BaseChannelConfig),
		bot:             bot,
		chatID:          cfg.ChatID,
	}, nil
}

// SendPrompt 发送带按钮的权限请求并等待回复
func (c *TelegramChannel) SendPrompt(ctx context.Context, req *types.PermissionRequest, timeout time.Duration) (types.Decision, error) {
	return runPrompt(ctx, c.BaseChannelImpl, c, req, timeout)
}

// SendNotice 发送通知
func (c *TelegramChannel) SendNotice(ctx context.Context, notice *Notice) error {
	return c.sendHTML(ctx, renderNotice(markupHTML, notice))
}

// SendAutoApproved 发送自动放行通知
func (c *TelegramChannel) SendAutoApproved(ctx context.Context, req *types.PermissionRequest) error {
	return c.sendHTML(ctx, renderAutoApproved(markupHTML, req))
}

// sendHTML 发送 HTML 消息
func (c *TelegramChannel) sendHTML(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := telegrambot.NewMessage(c.chatID, text)
	msg.ParseMode = telegrambot.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (c *TelegramChannel) markup() markup {
	return markupHTML
}

// postPrompt 发送带内联键盘的提示
func (c *TelegramChannel) postPrompt(ctx context.Context, text string, req *types.PermissionRequest) (string, ReplyPoller, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	msg := telegrambot.NewMessage(c.chatID, text)
	msg.ParseMode = telegrambot.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = decisionKeyboard(req.RequestID)

	sent, err := c.bot.Send(msg)
	if err != nil {
		return "", nil, err
	}
	return strconv.Itoa(sent.MessageID), newTelegramPoller(c.bot, c.chatID), nil
}

// editPrompt 编辑消息文本；不带 reply_markup 即移除键盘
func (c *TelegramChannel) editPrompt(ctx context.Context, messageID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", messageID, err)
	}
	edit := telegrambot.NewEditMessageText(c.chatID, id, text)
	edit.ParseMode = telegrambot.ModeHTML
	edit.DisableWebPagePreview = true
	_, err = c.bot.Send(edit)
	return err
}

// decisionKeyboard 三个决策按钮
func decisionKeyboard(requestID string) telegrambot.InlineKeyboardMarkup {
	return telegrambot.NewInlineKeyboardMarkup(
		telegrambot.NewInlineKeyboardRow(
			telegrambot.NewInlineKeyboardButtonData("✅ Allow", CallbackData(requestID, types.DecisionAllow)),
			telegrambot.NewInlineKeyboardButtonData("❌ Deny", CallbackData(requestID, types.DecisionDeny)),
		),
		telegrambot.NewInlineKeyboardRow(
			telegrambot.NewInlineKeyboardButtonData("🔓 Always Allow", CallbackData(requestID, types.DecisionAlwaysAllow)),
		),
	)
}

// telegramPoller 基于 getUpdates 的回复轮询器
//
// getUpdates 的 offset 会在服务端确认之前的所有更新。为了不让并发等待的其他进程
// 丢失它们的回调，属于其他请求的决定更新会被保留（offset 停在它们之前），
// 直到超过 foreignRetention；本地游标 next 保证同一更新只返回一次。
type telegramPoller struct {
	bot    *telegrambot.BotAPI
	chatID int64

	mu   sync.Mutex
	next int
	kept map[int]time.Time
	now  func() time.Time
}

func newTelegramPoller(bot *telegrambot.BotAPI, chatID int64) *telegramPoller {
	return &telegramPoller{
		bot:    bot,
		chatID: chatID,
		kept:   make(map[int]time.Time),
		now:    time.Now,
	}
}

// Poll 读取新的更新
//
// offset 停在保留更新上且返回了整页时，从本地游标继续翻页，越过的保留更新随之被服务端确认。
func (p *telegramPoller) Poll(ctx context.Context) ([]bus.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	offset := p.serverOffset()
	held := offset < p.next
	p.mu.Unlock()

	var replies []bus.Reply
	for {
		updates, err := p.bot.GetUpdates(telegrambot.UpdateConfig{
			Offset:         offset,
			Limit:          telegramUpdateLimit,
			Timeout:        0,
			AllowedUpdates: telegramAllowedUpdates,
		})
		if err != nil {
			if len(replies) > 0 {
				return replies, nil
			}
			return nil, err
		}

		p.mu.Lock()
		for _, update := range updates {
			if update.UpdateID < p.next {
				continue
			}
			p.next = update.UpdateID + 1
			if reply, ok := p.toReply(update); ok {
				replies = append(replies, reply)
			}
		}
		full := held && len(updates) >= telegramUpdateLimit && offset < p.next
		if full {
			dropped := p.releaseBefore(p.next)
			offset = p.next
			logger.Warn("Telegram update page full, releasing held updates",
				zap.Int("offset", offset),
				zap.Int("released", dropped),
			)
		}
		p.mu.Unlock()

		if !full || ctx.Err() != nil {
			return replies, nil
		}
	}
}

// releaseBefore 放弃 id 小于 offset 的保留更新，返回放弃的数量
func (p *telegramPoller) releaseBefore(offset int) int {
	n := 0
	for id := range p.kept {
		if id < offset {
			delete(p.kept, id)
			n++
		}
	}
	return n
}

// serverOffset 发给服务端的 offset：最早的未过期保留更新，否则本地游标
func (p *telegramPoller) serverOffset() int {
	now := p.now()
	offset := p.next
	for id, expiry := range p.kept {
		if now.After(expiry) {
			delete(p.kept, id)
			continue
		}
		if id < offset {
			offset = id
		}
	}
	return offset
}

// Keep 保留属于其他请求的决定更新
func (p *telegramPoller) Keep(reply bus.Reply) {
	id, err := strconv.Atoi(reply.Cursor)
	if err != nil {
		return
	}
	// 回调没有点击时间，只带原提示消息的时间，所以从看到它的时刻开始计算
	expiry := p.now().Add(foreignRetention)
	if reply.Kind == bus.ReplyKindText && !reply.Timestamp.IsZero() {
		expiry = reply.Timestamp.Add(foreignRetention)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now().Before(expiry) {
		p.kept[id] = expiry
	}
}

// Ack 应答回调，去掉按钮上的加载状态
func (p *telegramPoller) Ack(ctx context.Context, reply bus.Reply) error {
	if reply.Kind != bus.ReplyKindCallback {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.bot.Request(telegrambot.NewCallback(reply.EventID, ""))
	return err
}

// toReply 只接受来自配置会话的回调和文本消息
func (p *telegramPoller) toReply(update telegrambot.Update) (bus.Reply, bool) {
	cursor := strconv.Itoa(update.UpdateID)

	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != p.chatID {
			return bus.Reply{}, false
		}
		reply := bus.Reply{
			Channel:   MessengerTelegram,
			Kind:      bus.ReplyKindCallback,
			EventID:   cq.ID,
			Cursor:    cursor,
			ChatID:    strconv.FormatInt(cq.Message.Chat.ID, 10),
			MessageID: strconv.Itoa(cq.Message.MessageID),
			Content:   cq.Data,
			Timestamp: time.Unix(int64(cq.Message.Date), 0),
		}
		if cq.From != nil {
			reply.SenderID = strconv.FormatInt(cq.From.ID, 10)
			reply.FromBot = cq.From.IsBot
		}
		return reply, true
	}

	if msg := update.Message; msg != nil {
		if msg.Chat == nil || msg.Chat.ID != p.chatID || msg.Text == "" {
			return bus.Reply{}, false
		}
		reply := bus.Reply{
			Channel:   MessengerTelegram,
			Kind:      bus.ReplyKindText,
			EventID:   strconv.Itoa(msg.MessageID),
			Cursor:    cursor,
			ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
			MessageID: strconv.Itoa(msg.MessageID),
			Content:   msg.Text,
			Timestamp: time.Unix(int64(msg.Date), 0),
		}
		if msg.From != nil {
			reply.SenderID = strconv.FormatInt(msg.From.ID, 10)
			reply.FromBot = msg.From.IsBot
		}
		return reply, true
	}

	return bus.Reply{}, false
}

// RunBot 长轮询运行配置助手 bot，回应 /start、/help、/status
//
// 它会确认所有收到的更新，所以不要和等待决定的 hook 同时运行。
func (c *TelegramChannel) RunBot(ctx context.Context, hostname string) error {
	me, err := c.bot.GetMe()
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.bot.Self = me

	logger.Info("Telegram bot started",
		zap.String("bot_name", me.UserName),
		zap.String("bot_id", strconv.FormatInt(me.ID, 10)),
	)

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("Telegram bot stopped by context")
			return nil
		}

		updates, err := c.bot.GetUpdates(telegrambot.UpdateConfig{
			Offset:         offset,
			Timeout:        30,
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			logger.Warn("Failed to get telegram updates", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if err := c.handleCommand(update.Message, hostname); err != nil {
				logger.Error("Failed to handle command",
					zap.String("command", update.Message.Command()),
					zap.Error(err),
				)
			}
		}
	}
}

// handleCommand 处理命令
func (c *TelegramChannel) handleCommand(message *telegrambot.Message, hostname string) error {
	chatID := message.Chat.ID

	var text string
	switch message.Command() {
	case "start":
		text = fmt.Sprintf("👋 <b>hookrelay</b>\n\nYour chat ID is <code>%d</code>.\nPut it in <code>messengers.telegram.chat_id</code> or run <code>hookrelay onboard</code>.", chatID)
	case "help":
		text = "🤖 <b>hookrelay commands</b>\n\n/start - show this chat's ID\n/help - show this help\n/status - show relay status\n\nPermission prompts arrive here with Allow / Deny / Always Allow buttons. You can also reply <code>ALLOW &lt;id&gt;</code>, <code>DENY &lt;id&gt;</code> or <code>ALWAYS &lt;id&gt;</code>."
	case "status":
		configured := "🔴 this chat is not the configured chat"
		if chatID == c.chatID {
			configured = "🟢 this chat receives permission prompts"
		}
		text = fmt.Sprintf("✅ hookrelay bot running on <code>%s</code>\n\n%s", escapeHTML(hostname), configured)
	default:
		return nil
	}

	msg := telegrambot.NewMessage(chatID, text)
	msg.ParseMode = telegrambot.ModeHTML
	_, err := c.bot.Send(msg)
	return err
}

func escapeHTML(s string) string {
	return markupHTML.escape(s)
}
