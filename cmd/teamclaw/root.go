package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/teamclaw/teamclaw/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "teamclaw",
	Short: "Multi-agent chat gateway",
	Long: `TeamClaw connects chat channels (web, Telegram, Slack, Discord) to a team
of agents. Messages are routed by @mention to an agent, or handed to the
workflow decomposer when they describe a multi-step task.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $TEAMCLAW_CONFIG or config/teamclaw.yaml)")

	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config and installs the configured default logger.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		os.Setenv("TEAMCLAW_CONFIG", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stderr))
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
