package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// 配置目录下的文件名
const (
	configDirName     = ".claude"
	configFileName    = "hook_config.json"
	legacyFileName    = "telegram_hook.json"
	allowlistFileName = "always_allow.json"
	envFileName       = ".env"
)

// ConfigDir 返回 ~/.claude，无法解析 home 时退回相对路径 .claude
func ConfigDir() string {
	home, err := ResolveUserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return configDirName
	}
	return filepath.Join(home, configDirName)
}

// DefaultConfigPath 新格式配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), configFileName)
}

// LegacyConfigPath 旧格式（仅 Telegram）配置文件路径
func LegacyConfigPath() string {
	return filepath.Join(ConfigDir(), legacyFileName)
}

// DefaultAllowlistPath allow-list 默认路径
func DefaultAllowlistPath() string {
	return filepath.Join(ConfigDir(), allowlistFileName)
}

// EnvFilePath .env 文件路径
func EnvFilePath() string {
	return filepath.Join(ConfigDir(), envFileName)
}

// ResolveAllowlistPath 解析 allow-list 路径：flag > 配置 > 默认
func ResolveAllowlistPath(cfg *Config, override string) string {
	if p := strings.TrimSpace(override); p != "" {
		return ExpandUserPath(p)
	}
	if cfg != nil && strings.TrimSpace(cfg.AllowlistPath) != "" {
		return ExpandUserPath(cfg.AllowlistPath)
	}
	return DefaultAllowlistPath()
}

// ExpandUserPath expands a leading "~" to the resolved user home directory.
// If expansion fails, the original path is returned.
func ExpandUserPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return path
	}
	if p == "~" {
		if home, err := ResolveUserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		home, err := ResolveUserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(p, "~/"), "~\\")
		return filepath.Join(home, filepath.FromSlash(rest))
	}
	return path
}

// ResolveUserHomeDir returns the best-effort user home directory.
// On Windows, prefer USERPROFILE or HOMEDRIVE+HOMEPATH to avoid HOME drift.
func ResolveUserHomeDir() (string, error) {
	if runtime.GOOS == "windows" {
		if profile := strings.TrimSpace(os.Getenv("USERPROFILE")); profile != "" {
			return profile, nil
		}
		drive := strings.TrimSpace(os.Getenv("HOMEDRIVE"))
		path := strings.TrimSpace(os.Getenv("HOMEPATH"))
		if drive != "" && path != "" {
			return filepath.Clean(drive + path), nil
		}
	}
	return os.UserHomeDir()
}

// fileExists 路径存在且不是目录
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
