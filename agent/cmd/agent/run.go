package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/volta/agent/internal/agent"
	"github.com/obsidianstack/volta/agent/internal/config"
	"github.com/obsidianstack/volta/agent/internal/host"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow the printer host and report its state until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			h, feed, err := agent.NewHost(cfg.Host)
			if err != nil {
				return err
			}
			a := agent.New(cfg, h, userAgent())

			slog.Info("volta-agent starting",
				"version", version,
				"config", flagConfig,
				"api_server", cfg.Agent.APIServer,
				"host", cfg.Host.URL,
				"feed", feed.URL(),
				"retry", cfg.Agent.Retry,
				"time_retry", cfg.Agent.TimeRetry,
			)
			if cfg.Agent.Token() == "" {
				slog.Warn("no API token configured, reports stay disabled until one is set")
			}

			events := make(chan host.Event, 16)
			go feed.Run(ctx, events)

			reloads := make(chan *config.Config, 1)
			go func() {
				if err := config.Watch(ctx, flagConfig, func(updated *config.Config) {
					applyLogLevel(updated)
					select {
					case reloads <- updated:
					case <-ctx.Done():
					}
				}); err != nil {
					slog.Error("config watcher stopped", "err", err)
				}
			}()

			a.Run(ctx, events, reloads)
			slog.Info("volta-agent shutting down")
			return nil
		},
	}
}
