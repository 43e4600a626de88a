package cli

import (
	"fmt"
	"os"

	"github.com/smallnest/hookrelay/allowlist"
	"github.com/smallnest/hookrelay/config"
	"github.com/spf13/cobra"
)

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Manage tools that are always allowed without asking",
}

var allowlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List always-allowed tools",
	Args:  cobra.NoArgs,
	Run:   runAllowlistList,
}

var allowlistAddCmd = &cobra.Command{
	Use:   "add <tool>",
	Short: "Add a tool to the allow-list",
	Args:  cobra.ExactArgs(1),
	Run:   runAllowlistAdd,
}

var allowlistRemoveCmd = &cobra.Command{
	Use:   "remove <tool>",
	Short: "Remove a tool from the allow-list",
	Args:  cobra.ExactArgs(1),
	Run:   runAllowlistRemove,
}

var allowlistClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every tool from the allow-list",
	Args:  cobra.NoArgs,
	Run:   runAllowlistClear,
}

func init() {
	rootCmd.AddCommand(allowlistCmd)
	allowlistCmd.AddCommand(allowlistListCmd)
	allowlistCmd.AddCommand(allowlistAddCmd)
	allowlistCmd.AddCommand(allowlistRemoveCmd)
	allowlistCmd.AddCommand(allowlistClearCmd)
}

// openAllowlist 按 flag、配置、默认路径的顺序定位 allow-list
func openAllowlist() *allowlist.Store {
	var cfg *config.Config
	if allowlistFile == "" {
		// 配置不可用时退回默认路径
		if loaded, err := config.Load(cfgFile); err == nil {
			cfg = loaded
		}
	}
	return allowlist.NewStore(config.ResolveAllowlistPath(cfg, allowlistFile))
}

// runAllowlistList handles the allowlist list command
func runAllowlistList(cmd *cobra.Command, args []string) {
	store := openAllowlist()
	tools := store.List()

	out := cmd.OutOrStdout()
	if len(tools) == 0 {
		fmt.Fprintf(out, "No tools in allow-list (%s)\n", store.Path())
		return
	}
	fmt.Fprintf(out, "Always-allowed tools (%s):\n", store.Path())
	for _, tool := range tools {
		fmt.Fprintf(out, "  - %s\n", tool)
	}
}

// runAllowlistAdd handles the allowlist add command
func runAllowlistAdd(cmd *cobra.Command, args []string) {
	tool := args[0]
	if err := openAllowlist().Add(tool); err != nil {
		fmt.Fprintf(os.Stderr, "Error adding tool: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added to allow-list: %s\n", tool)
}

// runAllowlistRemove handles the allowlist remove command
func runAllowlistRemove(cmd *cobra.Command, args []string) {
	tool := args[0]
	if err := openAllowlist().Remove(tool); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing tool: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed from allow-list: %s\n", tool)
}

// runAllowlistClear handles the allowlist clear command
func runAllowlistClear(cmd *cobra.Command, args []string) {
	if err := openAllowlist().Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing allow-list: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Allow-list cleared")
}
