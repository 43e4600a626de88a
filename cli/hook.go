package cli

import (
	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/hooks"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle a PermissionRequest hook event (stdin JSON, decision on stdout)",
	Args:  cobra.NoArgs,
	RunE:  runHook,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Handle a Stop hook event and send a job-completed notice",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var notificationCmd = &cobra.Command{
	Use:     "notification",
	Aliases: []string{"notify"},
	Short:   "Forward a Notification hook event",
	Args:    cobra.NoArgs,
	RunE:    runNotification,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(notificationCmd)
}

// runHook 处理权限请求；失败时不输出决定并以非零退出
func runHook(cmd *cobra.Command, args []string) error {
	var in bus.PermissionInput
	if err := bus.Decode(cmd.InOrStdin(), &in); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := newHandler(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	decision, err := h.HandlePermission(ctx, &in)
	if err != nil {
		return err
	}
	return hooks.WriteResponse(cmd.OutOrStdout(), decision)
}

// runStop 发送任务完成通知
func runStop(cmd *cobra.Command, args []string) error {
	var in bus.StopInput
	if err := bus.Decode(cmd.InOrStdin(), &in); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := newHandler(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	return h.HandleStop(ctx, &in)
}

// runNotification 转发通知
func runNotification(cmd *cobra.Command, args []string) error {
	var in bus.NotificationInput
	if err := bus.Decode(cmd.InOrStdin(), &in); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := newHandler(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	return h.HandleNotification(ctx, &in)
}
