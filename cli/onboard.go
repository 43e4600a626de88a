package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/smallnest/hookrelay/channels"
	"github.com/smallnest/hookrelay/config"
	"github.com/spf13/cobra"
)

var (
	onboardMessenger string
	onboardToken     string
	onboardChatID    string
	onboardChannelID string
	onboardUserID    string
	onboardTimeout   int
	onboardPrimary   bool
	onboardSendTest  bool
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive setup wizard for hookrelay",
	Long: `Guided setup wizard for hookrelay.

This command helps you:
1. Pick a messenger (telegram, slack or discord)
2. Enter its bot token and chat / user ID
3. Write ~/.claude/hook_config.json

Run without flags for interactive mode, or pass --messenger and --token
for non-interactive setup.`,
	Args: cobra.NoArgs,
	Run:  runOnboard,
}

func init() {
	onboardCmd.Flags().StringVarP(&onboardMessenger, "messenger", "m", "", "messenger: telegram, slack or discord")
	onboardCmd.Flags().StringVarP(&onboardToken, "token", "t", "", "bot token (required in non-interactive mode)")
	onboardCmd.Flags().StringVar(&onboardChatID, "chat-id", "", "telegram chat ID")
	onboardCmd.Flags().StringVar(&onboardChannelID, "channel-id", "", "slack channel ID")
	onboardCmd.Flags().StringVar(&onboardUserID, "user-id", "", "slack or discord user ID")
	onboardCmd.Flags().IntVar(&onboardTimeout, "timeout", 0, "seconds to wait for a decision")
	onboardCmd.Flags().BoolVar(&onboardPrimary, "primary", true, "make this messenger the primary one")
	onboardCmd.Flags().BoolVar(&onboardSendTest, "test", false, "send a test notice after saving")
	rootCmd.AddCommand(onboardCmd)
}

// messengerTarget 一个平台需要填写的目标 ID
type messengerTarget struct {
	ChatID    string
	ChannelID string
	UserID    string
}

func runOnboard(cmd *cobra.Command, args []string) {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                  hookrelay Onboarding                  ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()

	// 1. 以现有配置为起点
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = config.Default()
		fmt.Printf("Step 1: Starting from a fresh configuration (%v)\n", err)
	} else {
		fmt.Printf("Step 1: Loaded existing configuration (%s)\n", cfg.Source)
	}
	fmt.Println()

	// 2. 交互或非交互
	if cmd.Flags().Changed("token") {
		err = nonInteractiveSetup(cfg)
	} else {
		err = interactiveSetup(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 3. 保存
	configPath := config.DefaultConfigPath()
	if cfgFile != "" {
		configPath = config.ExpandUserPath(cfgFile)
	}
	if err := config.Save(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  ✓ Config saved to %s\n", configPath)
	fmt.Println()

	if onboardSendTest {
		if err := sendTestNotice(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Test notice failed: %v\n", err)
		} else {
			fmt.Println("  ✓ Test notice sent")
		}
		fmt.Println()
	}

	printSummary(cfg, configPath)
}

func nonInteractiveSetup(cfg *config.Config) error {
	fmt.Println("Step 2: Non-interactive configuration...")

	messenger := strings.ToLower(strings.TrimSpace(onboardMessenger))
	if messenger == "" {
		messenger = config.DefaultPrimaryMessenger
	}
	if strings.TrimSpace(onboardToken) == "" {
		return fmt.Errorf("--token is required in non-interactive mode")
	}

	target := messengerTarget{ChatID: onboardChatID, ChannelID: onboardChannelID, UserID: onboardUserID}
	if err := applyMessenger(cfg, messenger, onboardToken, target); err != nil {
		return err
	}
	applyPreferences(cfg, messenger, onboardPrimary, onboardTimeout)

	fmt.Printf("  ✓ Messenger configured: %s\n", messenger)
	return nil
}

func interactiveSetup(cfg *config.Config) error {
	fmt.Println("Step 2: Interactive configuration")
	fmt.Println()

	sel := promptui.Select{
		Label:    "Messenger",
		Items:    config.MessengerPriority,
		HideHelp: true,
	}
	_, messenger, err := sel.Run()
	if err != nil {
		return fmt.Errorf("messenger selection cancelled: %w", err)
	}

	if hint := botHelp(messenger); hint != "" {
		fmt.Printf("  %s\n\n", hint)
	}

	token, err := promptValue("Bot token", currentToken(cfg, messenger), '*', requireNonEmpty)
	if err != nil {
		return err
	}

	var target messengerTarget
	switch messenger {
	case config.MessengerTelegram:
		target.ChatID, err = promptValue("Chat ID", cfg.Messengers.Telegram.ChatID, 0, requireInteger)
	case config.MessengerSlack:
		target.ChannelID, err = promptValue("Channel ID (Enter to use a user ID)", cfg.Messengers.Slack.ChannelID, 0, nil)
		if err == nil && target.ChannelID == "" {
			target.UserID, err = promptValue("User ID", cfg.Messengers.Slack.UserID, 0, requireNonEmpty)
		}
	case config.MessengerDiscord:
		target.UserID, err = promptValue("User ID", cfg.Messengers.Discord.UserID, 0, requireInteger)
	}
	if err != nil {
		return err
	}

	timeout, err := promptValue("Timeout seconds", strconv.Itoa(cfg.Preferences.TimeoutSeconds), 0, requireInteger)
	if err != nil {
		return err
	}
	seconds, _ := strconv.Atoi(timeout)

	if err := applyMessenger(cfg, messenger, token, target); err != nil {
		return err
	}
	applyPreferences(cfg, messenger, true, seconds)

	fmt.Printf("  ✓ Messenger configured: %s (token %s)\n", messenger, maskAPIKey(token))
	return nil
}

// promptValue 读取一行输入；mask 非零时隐藏输入
func promptValue(label, defaultValue string, mask rune, validate promptui.ValidateFunc) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Mask:     mask,
		Validate: validate,
	}
	value, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(value), nil
}

func requireNonEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("value is required")
	}
	return nil
}

func requireInteger(input string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64); err != nil {
		return errors.New("value must be an integer")
	}
	return nil
}

func currentToken(cfg *config.Config, messenger string) string {
	switch messenger {
	case config.MessengerTelegram:
		return cfg.Messengers.Telegram.BotToken
	case config.MessengerSlack:
		return cfg.Messengers.Slack.BotToken
	case config.MessengerDiscord:
		return cfg.Messengers.Discord.BotToken
	}
	return ""
}

// applyMessenger 写入平台 token 和目标 ID，并启用该平台
func applyMessenger(cfg *config.Config, messenger, token string, target messengerTarget) error {
	token = strings.TrimSpace(token)
	switch messenger {
	case config.MessengerTelegram:
		if strings.TrimSpace(target.ChatID) == "" {
			return fmt.Errorf("telegram needs --chat-id (run `hookrelay bot --token <token>` and send /start)")
		}
		cfg.Messengers.Telegram = config.TelegramConfig{Enabled: true, BotToken: token, ChatID: strings.TrimSpace(target.ChatID)}
	case config.MessengerSlack:
		if strings.TrimSpace(target.ChannelID) == "" && strings.TrimSpace(target.UserID) == "" {
			return fmt.Errorf("slack needs --channel-id or --user-id")
		}
		cfg.Messengers.Slack = config.SlackConfig{
			Enabled:   true,
			BotToken:  token,
			ChannelID: strings.TrimSpace(target.ChannelID),
			UserID:    strings.TrimSpace(target.UserID),
		}
	case config.MessengerDiscord:
		if strings.TrimSpace(target.UserID) == "" {
			return fmt.Errorf("discord needs --user-id")
		}
		cfg.Messengers.Discord = config.DiscordConfig{Enabled: true, BotToken: token, UserID: strings.TrimSpace(target.UserID)}
	default:
		return fmt.Errorf("invalid messenger: %s (must be telegram, slack or discord)", messenger)
	}
	return nil
}

func applyPreferences(cfg *config.Config, messenger string, primary bool, timeoutSeconds int) {
	if primary {
		cfg.Preferences.PrimaryMessenger = messenger
	}
	if timeoutSeconds > 0 {
		cfg.Preferences.TimeoutSeconds = timeoutSeconds
	}
	if cfg.Preferences.PollIntervalMS <= 0 {
		cfg.Preferences.PollIntervalMS = config.DefaultPollIntervalMS
	}
}

// sendTestNotice 通过主平台发送一条测试通知
func sendTestNotice(parent context.Context, cfg *config.Config) error {
	mgr, err := channels.NewManagerFromConfig(cfg)
	if err != nil {
		return err
	}
	ch, err := mgr.Primary()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 15*time.Second)
	defer cancel()

	return ch.SendNotice(ctx, &channels.Notice{
		Icon:  "👋",
		Title: "hookrelay is connected",
		Fields: []channels.Field{
			{Name: "🖥️ Host", Value: cfg.Hostname},
		},
	})
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func printSummary(cfg *config.Config, configPath string) {
	fmt.Println("═════════════════════════════════════════════════════════")
	fmt.Println("                         Summary")
	fmt.Println("═════════════════════════════════════════════════════════")
	fmt.Println()

	for _, name := range cfg.MessengerOrder() {
		fmt.Printf("  %-9s token %s\n", name+":", maskAPIKey(currentToken(cfg, name)))
	}
	fmt.Printf("  Primary:  %s\n", cfg.Preferences.PrimaryMessenger)
	fmt.Printf("  Timeout:  %ds\n", cfg.Preferences.TimeoutSeconds)
	fmt.Printf("  Host:     %s\n", cfg.Hostname)

	fmt.Println()
	fmt.Println("═════════════════════════════════════════════════════════")
	fmt.Println("                     Next Steps")
	fmt.Println("═════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println("  1. Register the hooks in ~/.claude/settings.json:")
	fmt.Println(`     "PermissionRequest": hookrelay hook`)
	fmt.Println(`     "Stop":              hookrelay stop`)
	fmt.Println(`     "Notification":      hookrelay notification`)
	fmt.Println()
	fmt.Println("  2. View configuration:")
	fmt.Printf("     $ hookrelay config show --config %s\n", configPath)
	fmt.Println()
	fmt.Println("  3. Manage always-allowed tools:")
	fmt.Println("     $ hookrelay allowlist list")
	fmt.Println()
}
