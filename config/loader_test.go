package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// isolateHome 把 HOME 指向临时目录并清掉相关环境变量
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
		}
	}
	return home
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadLegacyConfigWithStringChatID(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{"telegram_bot_token":"test_token","telegram_chat_id":"123456"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tg := cfg.Messengers.Telegram
	if !tg.Configured() || tg.BotToken != "test_token" {
		t.Fatalf("expected telegram to be configured from legacy file, got %+v", tg)
	}
	id, err := tg.TelegramChatID()
	if err != nil || id != 123456 {
		t.Fatalf("expected chat id 123456, got %d (%v)", id, err)
	}
	if cfg.Preferences.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Fatalf("expected default timeout, got %d", cfg.Preferences.TimeoutSeconds)
	}
}

func TestLoadLegacyConfigWithIntChatID(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{"telegram_bot_token":"test_token","telegram_chat_id":-1001234567890}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	id, err := cfg.Messengers.Telegram.TelegramChatID()
	if err != nil || id != -1001234567890 {
		t.Fatalf("expected large negative chat id, got %d (%v)", id, err)
	}
}

func TestLoadLegacyConfigMissingToken(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{"telegram_chat_id":"123456"}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for legacy config without token")
	}
}

func TestLoadNewConfigTelegramOnly(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{
		"messengers": {
			"telegram": {"bot_token": "new_token", "chat_id": "789012"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Messengers.Telegram.Configured() {
		t.Fatalf("telegram should default to enabled")
	}
	if cfg.Timeout() != 300*time.Second {
		t.Fatalf("expected default 300s timeout, got %s", cfg.Timeout())
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Fatalf("expected default 500ms poll interval, got %s", cfg.PollInterval())
	}
	if cfg.Source != path {
		t.Fatalf("expected source %q, got %q", path, cfg.Source)
	}
}

func TestLoadNewConfigWithPreferences(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{
		"messengers": {
			"telegram": {"enabled": true, "bot_token": "token123", "chat_id": 111222},
			"discord": {"enabled": true, "bot_token": "dtoken", "user_id": "42"}
		},
		"preferences": {"primary_messenger": "discord", "timeout_seconds": 600}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeout() != 600*time.Second {
		t.Fatalf("expected 600s timeout, got %s", cfg.Timeout())
	}
	want := []string{MessengerDiscord, MessengerTelegram}
	if got := cfg.MessengerOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestLoadNewConfigWithoutMessengersIsNotFatal(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{"messengers": {}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HasMessenger() {
		t.Fatalf("expected no messenger to be configured")
	}
}

func TestLoadDisabledMessengerIsSkipped(t *testing.T) {
	dir := isolateHome(t)
	path := writeConfig(t, dir, "config.json", `{
		"messengers": {
			"telegram": {"enabled": false, "bot_token": "t", "chat_id": "1"},
			"slack": {"bot_token": "xoxb-1", "channel_id": "D123"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []string{MessengerSlack}
	if got := cfg.MessengerOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestLoadSearchesDefaultThenLegacyPath(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, filepath.Join(".claude", "telegram_hook.json"), `{"telegram_bot_token":"legacy","telegram_chat_id":"1"}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Messengers.Telegram.BotToken != "legacy" {
		t.Fatalf("expected legacy file to be used, got %+v", cfg.Messengers.Telegram)
	}

	writeConfig(t, home, filepath.Join(".claude", "hook_config.json"), `{"messengers":{"telegram":{"bot_token":"new","chat_id":"2"}}}`)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Messengers.Telegram.BotToken != "new" {
		t.Fatalf("expected new format file to win, got %+v", cfg.Messengers.Telegram)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	isolateHome(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env_token")
	t.Setenv("TELEGRAM_CHAT_ID", "555")
	t.Setenv("HOOKRELAY_TIMEOUT_SECONDS", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Source != "env" {
		t.Fatalf("expected env source, got %q", cfg.Source)
	}
	if cfg.Messengers.Telegram.BotToken != "env_token" || cfg.Messengers.Telegram.ChatID != "555" {
		t.Fatalf("unexpected telegram config %+v", cfg.Messengers.Telegram)
	}
	if cfg.Preferences.TimeoutSeconds != 42 {
		t.Fatalf("expected timeout from env, got %d", cfg.Preferences.TimeoutSeconds)
	}
}

func TestLoadEmptyEnvironmentHasNoMessenger(t *testing.T) {
	isolateHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HasMessenger() {
		t.Fatalf("expected no messenger without file or env")
	}
	if cfg.Hostname == "" {
		t.Fatalf("hostname should always be filled")
	}
}

func TestLoadExplicitPathNotFound(t *testing.T) {
	isolateHome(t)

	_, err := Load("/nonexistent/path.json")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Preferences: PreferencesConfig{
				PrimaryMessenger: MessengerTelegram,
				TimeoutSeconds:   300,
				PollIntervalMS:   500,
			},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"empty is valid", func(c *Config) {}, false},
		{"telegram bad chat id", func(c *Config) {
			c.Messengers.Telegram = TelegramConfig{Enabled: true, BotToken: "t", ChatID: "abc"}
		}, true},
		{"telegram missing chat id", func(c *Config) {
			c.Messengers.Telegram = TelegramConfig{Enabled: true, BotToken: "t"}
		}, true},
		{"slack without recipient", func(c *Config) {
			c.Messengers.Slack = SlackConfig{Enabled: true, BotToken: "xoxb"}
		}, true},
		{"slack with user", func(c *Config) {
			c.Messengers.Slack = SlackConfig{Enabled: true, BotToken: "xoxb", UserID: "U1"}
		}, false},
		{"discord non numeric user", func(c *Config) {
			c.Messengers.Discord = DiscordConfig{Enabled: true, BotToken: "d", UserID: "bob"}
		}, true},
		{"zero timeout", func(c *Config) { c.Preferences.TimeoutSeconds = 0 }, true},
		{"zero poll interval", func(c *Config) { c.Preferences.PollIntervalMS = 0 }, true},
		{"unknown primary", func(c *Config) { c.Preferences.PrimaryMessenger = "signal" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestMessengerOrderFallsBackWhenPrimaryMissing(t *testing.T) {
	cfg := &Config{
		Messengers: MessengersConfig{
			Slack:   SlackConfig{Enabled: true, BotToken: "x", ChannelID: "D1"},
			Discord: DiscordConfig{Enabled: true, BotToken: "d", UserID: "1"},
		},
		Preferences: PreferencesConfig{PrimaryMessenger: MessengerTelegram},
	}

	want := []string{MessengerSlack, MessengerDiscord}
	if got := cfg.MessengerOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolateHome(t)
	path := filepath.Join(dir, "out", "hook_config.json")

	cfg := &Config{
		Messengers: MessengersConfig{
			Telegram: TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "99"},
		},
		Preferences: PreferencesConfig{PrimaryMessenger: MessengerTelegram, TimeoutSeconds: 120, PollIntervalMS: 250},
	}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Messengers.Telegram.ChatID != "99" || loaded.Preferences.TimeoutSeconds != 120 {
		t.Fatalf("unexpected loaded config %+v", loaded)
	}
}

func TestExpandUserPath(t *testing.T) {
	home := isolateHome(t)

	got := ExpandUserPath("~/allow.json")
	want := filepath.Join(home, "allow.json")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if ExpandUserPath("/abs/path") != "/abs/path" {
		t.Fatalf("absolute path should be unchanged")
	}
}

func TestResolveAllowlistPath(t *testing.T) {
	home := isolateHome(t)

	if got := ResolveAllowlistPath(nil, ""); got != filepath.Join(home, ".claude", "always_allow.json") {
		t.Fatalf("unexpected default path %q", got)
	}
	cfg := &Config{AllowlistPath: "/tmp/a.json"}
	if got := ResolveAllowlistPath(cfg, ""); got != "/tmp/a.json" {
		t.Fatalf("expected config path, got %q", got)
	}
	if got := ResolveAllowlistPath(cfg, "/tmp/b.json"); got != "/tmp/b.json" {
		t.Fatalf("expected flag override, got %q", got)
	}
}
