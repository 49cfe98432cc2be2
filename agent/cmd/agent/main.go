package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/volta/agent/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "volta-agent",
	Short:         "Report 3D printer state to the Volta monitoring service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, err := config.LoadDotEnv("."); err != nil {
			slog.Warn("failed to load .env", "err", err)
		} else if path != "" {
			slog.Debug("loaded .env", "path", path)
		}
		return nil
	},
}

var (
	flagConfig   string
	flagLogLevel string

	// logLevel is shared by the handler and config reloads.
	logLevel = new(slog.LevelVar)
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.AddCommand(
		newRunCmd(),
		newVerifyCmd(),
		newIdentityCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("volta-agent command failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads --config. A missing default config file yields the
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Warn("config file not found, using defaults", "path", flagConfig)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg)
	return cfg, nil
}

func applyLogLevel(cfg *config.Config) {
	if flagLogLevel != "" {
		logLevel.Set(config.LogConfig{Level: flagLogLevel}.SlogLevel())
		return
	}
	logLevel.Set(cfg.Log.SlogLevel())
}

func userAgent() string { return "volta-agent/" + version }
