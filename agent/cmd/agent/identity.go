package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/volta/agent/internal/agent"
)

func newIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the device address and the identifier derived from it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, _, err := agent.NewHost(cfg.Host)
			if err != nil {
				return err
			}

			id, err := agent.New(cfg, h, userAgent()).Verifier().Resolve(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", id.Name)
			fmt.Fprintf(out, "address: %s\n", id.Address)
			fmt.Fprintf(out, "id:      %s\n", id.ID)
			return nil
		},
	}
}
