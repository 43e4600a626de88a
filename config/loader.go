package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfigNotFound 显式指定的配置文件不存在
var ErrConfigNotFound = errors.New("configuration file not found")

// 默认值
const (
	DefaultTimeoutSeconds   = 300
	DefaultPollIntervalMS   = 500
	DefaultPrimaryMessenger = MessengerTelegram
)

// envBindings 配置键与环境变量的对应关系
var envBindings = map[string][]string{
	"messengers.telegram.bot_token": {"TELEGRAM_BOT_TOKEN"},
	"messengers.telegram.chat_id":   {"TELEGRAM_CHAT_ID"},
	"messengers.slack.bot_token":    {"SLACK_BOT_TOKEN"},
	"messengers.slack.channel_id":   {"SLACK_CHANNEL_ID"},
	"messengers.slack.user_id":      {"SLACK_USER_ID"},
	"messengers.discord.bot_token":  {"DISCORD_BOT_TOKEN"},
	"messengers.discord.user_id":    {"DISCORD_USER_ID"},
	"preferences.primary_messenger": {"HOOKRELAY_PRIMARY_MESSENGER"},
	"preferences.timeout_seconds":   {"HOOKRELAY_TIMEOUT_SECONDS"},
	"preferences.poll_interval_ms":  {"HOOKRELAY_POLL_INTERVAL_MS"},
	"hostname":                      {"HOOKRELAY_HOSTNAME"},
	"allowlist_path":                {"HOOKRELAY_ALLOWLIST"},
	"log.level":                     {"HOOKRELAY_LOG_LEVEL"},
}

// Load 加载配置
//
// 搜索顺序：
//  1. configPath（若指定则必须存在）
//  2. ~/.claude/hook_config.json
//  3. ~/.claude/telegram_hook.json（旧格式）
//  4. 只使用环境变量（以及 ~/.claude/.env）
func Load(configPath string) (*Config, error) {
	// .env 不覆盖已存在的环境变量；文件不存在时忽略
	_ = godotenv.Load(EnvFilePath())

	path := ""
	if strings.TrimSpace(configPath) != "" {
		path = ExpandUserPath(configPath)
		if !fileExists(path) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
	} else if p := DefaultConfigPath(); fileExists(p) {
		path = p
	} else if p := LegacyConfigPath(); fileExists(p) {
		path = p
	}

	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	source := "env"
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		source = path
	}

	if isLegacy(v) {
		if err := applyLegacy(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Source = source

	if strings.TrimSpace(cfg.Hostname) == "" {
		cfg.Hostname = hostname()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回默认配置，不读取文件和环境变量
func Default() *Config {
	return &Config{
		Messengers: MessengersConfig{
			Telegram: TelegramConfig{Enabled: true},
			Slack:    SlackConfig{Enabled: true},
			Discord:  DiscordConfig{Enabled: true},
		},
		Preferences: PreferencesConfig{
			PrimaryMessenger: DefaultPrimaryMessenger,
			TimeoutSeconds:   DefaultTimeoutSeconds,
			PollIntervalMS:   DefaultPollIntervalMS,
		},
		Hostname: hostname(),
		Log:      LogConfig{Level: "info"},
		Source:   "default",
	}
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("messengers.telegram.enabled", true)
	v.SetDefault("messengers.slack.enabled", true)
	v.SetDefault("messengers.discord.enabled", true)

	v.SetDefault("preferences.primary_messenger", DefaultPrimaryMessenger)
	v.SetDefault("preferences.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("preferences.poll_interval_ms", DefaultPollIntervalMS)

	v.SetDefault("log.level", "info")
}

// isLegacy 旧格式：顶层 telegram_* 字段，没有 messengers
func isLegacy(v *viper.Viper) bool {
	if v.InConfig("messengers") {
		return false
	}
	return v.InConfig("telegram_bot_token") || v.InConfig("telegram_chat_id")
}

// applyLegacy 把旧格式字段映射到新结构
func applyLegacy(v *viper.Viper) error {
	token := strings.TrimSpace(v.GetString("telegram_bot_token"))
	if token == "" {
		return fmt.Errorf("missing required field: telegram_bot_token")
	}
	chatID := strings.TrimSpace(v.GetString("telegram_chat_id"))
	if chatID == "" {
		return fmt.Errorf("missing required field: telegram_chat_id")
	}
	v.Set("messengers.telegram.enabled", true)
	v.Set("messengers.telegram.bot_token", token)
	v.Set("messengers.telegram.chat_id", chatID)
	return nil
}

// hostname 获取主机名，失败时返回 unknown
func hostname() string {
	name, err := os.Hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		return "unknown"
	}
	return name
}

// Validate 验证配置
func Validate(cfg *Config) error {
	if err := validateMessengers(cfg); err != nil {
		return fmt.Errorf("messengers config invalid: %w", err)
	}
	if err := validatePreferences(cfg); err != nil {
		return fmt.Errorf("preferences config invalid: %w", err)
	}
	return nil
}

// validateMessengers 验证平台配置；未填写 token 的平台视为未配置
func validateMessengers(cfg *Config) error {
	tg := cfg.Messengers.Telegram
	if tg.Configured() {
		if strings.TrimSpace(tg.ChatID) == "" {
			return fmt.Errorf("telegram chat_id is required")
		}
		if _, err := tg.TelegramChatID(); err != nil {
			return err
		}
	}

	sl := cfg.Messengers.Slack
	if sl.Configured() && strings.TrimSpace(sl.ChannelID) == "" && strings.TrimSpace(sl.UserID) == "" {
		return fmt.Errorf("slack channel_id or user_id is required")
	}

	dc := cfg.Messengers.Discord
	if dc.Configured() {
		if strings.TrimSpace(dc.UserID) == "" {
			return fmt.Errorf("discord user_id is required")
		}
		for _, r := range strings.TrimSpace(dc.UserID) {
			if r < '0' || r > '9' {
				return fmt.Errorf("discord user_id must be a valid integer: %q", dc.UserID)
			}
		}
	}
	return nil
}

// validatePreferences 验证偏好设置
func validatePreferences(cfg *Config) error {
	if cfg.Preferences.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if cfg.Preferences.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}

	primary := strings.ToLower(strings.TrimSpace(cfg.Preferences.PrimaryMessenger))
	for _, name := range MessengerPriority {
		if primary == name {
			return nil
		}
	}
	return fmt.Errorf("unknown primary_messenger %q", cfg.Preferences.PrimaryMessenger)
}

// Save 保存配置到文件
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 文件包含 bot token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
