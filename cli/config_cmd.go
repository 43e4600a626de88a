package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/hookrelay/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the hookrelay configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with tokens masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file locations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config:    %s\n", config.DefaultConfigPath())
		fmt.Fprintf(out, "legacy:    %s\n", config.LegacyConfigPath())
		fmt.Fprintf(out, "env file:  %s\n", config.EnvFilePath())
		fmt.Fprintf(out, "allowlist: %s\n", config.DefaultAllowlistPath())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg)
}

// writeConfig 输出脱敏后的 YAML
func writeConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "# source: %s\n", cfg.Source)
	order := cfg.MessengerOrder()
	if len(order) == 0 {
		fmt.Fprintln(w, "# messengers: none configured")
	} else {
		fmt.Fprintf(w, "# messengers: %s\n", strings.Join(order, " -> "))
	}

	data, err := yaml.Marshal(redact(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// redact 返回 token 被遮盖的副本
func redact(cfg *config.Config) *config.Config {
	c := *cfg
	m := &c.Messengers
	for _, token := range []*string{&m.Telegram.BotToken, &m.Slack.BotToken, &m.Discord.BotToken} {
		if *token != "" {
			*token = maskAPIKey(*token)
		}
	}
	return &c
}
