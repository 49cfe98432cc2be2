package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/volta/agent/internal/agent"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the API token against the Volta service once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, _, err := agent.NewHost(cfg.Host)
			if err != nil {
				return err
			}
			v := agent.New(cfg, h, userAgent()).Verifier()

			ok, err := v.Verify(context.Background())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("verification with %s was unsuccessful", cfg.Agent.APIServer)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verified %s as %s\n", cfg.Agent.APIServer, v.Identity().Address)
			return nil
		},
	}
}
