package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 支持的消息平台名称，顺序即为回退优先级
const (
	MessengerTelegram = "telegram"
	MessengerSlack    = "slack"
	MessengerDiscord  = "discord"
)

// MessengerPriority 主平台不可用时的固定回退顺序
var MessengerPriority = []string{MessengerTelegram, MessengerSlack, MessengerDiscord}

// Config 是主配置结构
type Config struct {
	Messengers    MessengersConfig  `mapstructure:"messengers" json:"messengers" yaml:"messengers"`
	Preferences   PreferencesConfig `mapstructure:"preferences" json:"preferences" yaml:"preferences"`
	Hostname      string            `mapstructure:"hostname" json:"hostname,omitempty" yaml:"hostname,omitempty"`
	AllowlistPath string            `mapstructure:"allowlist_path" json:"allowlist_path,omitempty" yaml:"allowlist_path,omitempty"`
	Log           LogConfig         `mapstructure:"log" json:"log" yaml:"log"`

	// Source 配置来源：文件路径，或 "env" 表示只来自环境变量
	Source string `mapstructure:"-" json:"-" yaml:"-"`
}

// MessengersConfig 各消息平台配置
type MessengersConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram" yaml:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack" json:"slack" yaml:"slack"`
	Discord  DiscordConfig  `mapstructure:"discord" json:"discord" yaml:"discord"`
}

// TelegramConfig Telegram 配置
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"bot_token" yaml:"bot_token"`
	// ChatID 可以在 JSON 中写成字符串或整数
	ChatID string `mapstructure:"chat_id" json:"chat_id" yaml:"chat_id"`
}

// SlackConfig Slack 配置
type SlackConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"bot_token" yaml:"bot_token"`
	// ChannelID 直接指定会话（通常是 D 开头的私聊）；为空时用 UserID 打开私聊
	ChannelID string `mapstructure:"channel_id" json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	UserID    string `mapstructure:"user_id" json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// DiscordConfig Discord 配置
type DiscordConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"bot_token" yaml:"bot_token"`
	UserID   string `mapstructure:"user_id" json:"user_id" yaml:"user_id"`
}

// PreferencesConfig 行为偏好
type PreferencesConfig struct {
	PrimaryMessenger string `mapstructure:"primary_messenger" json:"primary_messenger" yaml:"primary_messenger"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	PollIntervalMS   int    `mapstructure:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	File  string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// Timeout 等待决定的超时时间
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// PollInterval 轮询间隔
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Preferences.PollIntervalMS) * time.Millisecond
}

// TelegramChatID 解析 Telegram chat id
func (c TelegramConfig) TelegramChatID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.ChatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat_id must be a valid integer: %q", c.ChatID)
	}
	return id, nil
}

// Configured 是否启用且凭据齐全
func (c TelegramConfig) Configured() bool {
	return c.Enabled && strings.TrimSpace(c.BotToken) != ""
}

// Configured 是否启用且凭据齐全
func (c SlackConfig) Configured() bool {
	return c.Enabled && strings.TrimSpace(c.BotToken) != ""
}

// Configured 是否启用且凭据齐全
func (c DiscordConfig) Configured() bool {
	return c.Enabled && strings.TrimSpace(c.BotToken) != ""
}

// IsConfigured 按名称判断某个平台是否可用
func (c *Config) IsConfigured(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MessengerTelegram:
		return c.Messengers.Telegram.Configured()
	case MessengerSlack:
		return c.Messengers.Slack.Configured()
	case MessengerDiscord:
		return c.Messengers.Discord.Configured()
	default:
		return false
	}
}

// HasMessenger 是否至少配置了一个平台
func (c *Config) HasMessenger() bool {
	for _, name := range MessengerPriority {
		if c.IsConfigured(name) {
			return true
		}
	}
	return false
}

// MessengerOrder 选择顺序：主平台优先，其余按固定优先级，只包含已配置的平台
func (c *Config) MessengerOrder() []string {
	order := make([]string, 0, len(MessengerPriority))
	primary := strings.ToLower(strings.TrimSpace(c.Preferences.PrimaryMessenger))
	if c.IsConfigured(primary) {
		order = append(order, primary)
	}
	for _, name := range MessengerPriority {
		if name == primary {
			continue
		}
		if c.IsConfigured(name) {
			order = append(order, name)
		}
	}
	return order
}
