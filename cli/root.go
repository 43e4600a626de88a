package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smallnest/hookrelay/allowlist"
	"github.com/smallnest/hookrelay/channels"
	"github.com/smallnest/hookrelay/config"
	"github.com/smallnest/hookrelay/hooks"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/spf13/cobra"
)

// 全局 flag
var (
	cfgFile       string
	allowlistFile string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "hookrelay",
	Short: "Relay Claude Code permission requests and job status to Telegram, Slack or Discord",
	Long: `hookrelay is invoked by Claude Code hooks.

Permission requests are sent to your primary messenger and wait for an
Allow / Deny / Always Allow reply. Stop and Notification events are
forwarded as plain notices.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if level == "" {
			level = "warn"
		}
		return logger.Init(level, false)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.claude/hook_config.json)")
	rootCmd.PersistentFlags().StringVar(&allowlistFile, "allowlist", "", "allow-list file (default ~/.claude/always_allow.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// Execute 执行根命令，错误写到 stderr
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig 加载配置，并按配置重新初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.Init(level, false, config.ExpandUserPath(cfg.Log.File)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// newHandler 按配置组装 hook 处理器，不做网络请求
func newHandler(cfg *config.Config) (*hooks.Handler, error) {
	mgr, err := channels.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	store := allowlist.NewStore(config.ResolveAllowlistPath(cfg, allowlistFile))
	return hooks.NewHandler(mgr, store, cfg.Hostname, cfg.Timeout()), nil
}

// signalContext 收到 SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
