package channels

import (
	"fmt"
	"sync"

	"github.com/smallnest/hookrelay/config"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"go.uber.org/zap"
)

// 通道名称
const (
	MessengerTelegram = config.MessengerTelegram
	MessengerSlack    = config.MessengerSlack
	MessengerDiscord  = config.MessengerDiscord
)

// Manager 通道管理器，按注册顺序选择主通道
type Manager struct {
	channels map[string]Channel
	order    []string
	mu       sync.RWMutex
}

// NewManager 创建通道管理器
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
	}
}

// NewManagerFromConfig 按配置创建通道，不做网络请求
func NewManagerFromConfig(cfg *config.Config) (*Manager, error) {
	m := NewManager()
	if err := m.SetupFromConfig(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Register 注册通道，先注册的优先
func (m *Manager) Register(channel Channel) error {
	if channel == nil {
		return fmt.Errorf("channel is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := channel.Name()
	if _, ok := m.channels[name]; ok {
		return fmt.Errorf("channel %s already registered", name)
	}

	m.channels[name] = channel
	m.order = append(m.order, name)
	logger.Debug("Channel registered", zap.String("channel", name))
	return nil
}

// Get 获取通道
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channel, ok := m.channels[name]
	return channel, ok
}

// List 按优先级返回已注册的通道名
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Primary 返回优先级最高的通道
func (m *Manager) Primary() (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return nil, ErrNoChannel
	}
	return m.channels[m.order[0]], nil
}

// SetupFromConfig 从配置设置通道：主平台优先，其余按固定优先级
func (m *Manager) SetupFromConfig(cfg *config.Config) error {
	base := BaseChannelConfig{
		PollInterval: cfg.PollInterval(),
		Classifier:   types.NewSimpleErrorClassifier(),
	}

	for _, name := range cfg.MessengerOrder() {
		channel, err := newChannel(name, cfg, base)
		if err != nil {
			return fmt.Errorf("failed to create %s channel: %w", name, err)
		}
		if err := m.Register(channel); err != nil {
			return err
		}
	}
	return nil
}

// newChannel 按名称创建通道
func newChannel(name string, cfg *config.Config, base BaseChannelConfig) (Channel, error) {
	switch name {
	case MessengerTelegram:
		tg := cfg.Messengers.Telegram
		chatID, err := tg.TelegramChatID()
		if err != nil {
			return nil, err
		}
		return NewTelegramChannel(TelegramConfig{
			BaseChannelConfig: base,
			Token:             tg.BotToken,
			ChatID:            chatID,
		})
	case MessengerSlack:
		sl := cfg.Messengers.Slack
		return NewSlackChannel(SlackConfig{
			BaseChannelConfig: base,
			Token:             sl.BotToken,
			ChannelID:         sl.ChannelID,
			UserID:            sl.UserID,
		})
	case MessengerDiscord:
		dc := cfg.Messengers.Discord
		return NewDiscordChannel(DiscordConfig{
			BaseChannelConfig: base,
			Token:             dc.BotToken,
			UserID:            dc.UserID,
		})
	default:
		return nil, fmt.Errorf("unknown messenger %q", name)
	}
}
