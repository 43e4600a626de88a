package cli

import (
	"fmt"

	"github.com/smallnest/hookrelay/channels"
	"github.com/smallnest/hookrelay/config"
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram setup bot (/start shows your chat ID)",
	Long: `Run a long-polling Telegram bot that answers /start, /help and /status.

Use it once to find your chat ID. Stop it before using the hooks: it
consumes every pending update, including permission replies.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

var botToken string

func init() {
	botCmd.Flags().StringVar(&botToken, "token", "", "bot token (skips the config file, chat ID not needed)")
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	tc := channels.TelegramConfig{Token: botToken}
	host := config.Default().Hostname
	source := "--token"

	if tc.Token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tg := cfg.Messengers.Telegram
		if !tg.Configured() {
			return fmt.Errorf("telegram is not configured: pass --token or set messengers.telegram.bot_token")
		}
		chatID, err := tg.TelegramChatID()
		if err != nil {
			return err
		}
		tc.Token = tg.BotToken
		tc.ChatID = chatID
		tc.PollInterval = cfg.PollInterval()
		host = cfg.Hostname
		source = cfg.Source
	}

	ch, err := channels.NewTelegramChannel(tc)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Telegram bot running (config: %s). Press Ctrl+C to stop.\n", source)
	return ch.RunBot(ctx, host)
}

// botHelp 打印配置 bot 时的提示
func botHelp(messenger string) string {
	switch messenger {
	case config.MessengerTelegram:
		return "Create a bot with @BotFather, then send /start to it after running `hookrelay bot` to learn your chat ID."
	case config.MessengerSlack:
		return "Create a Slack app with chat:write, im:history, im:write and reactions:write scopes, and install it to get a xoxb- token."
	case config.MessengerDiscord:
		return "Create a Discord application with a bot user, then enable Developer Mode to copy your numeric user ID."
	default:
		return ""
	}
}
