package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
)

func newHealthCmd(cfg *config.Config) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the asset backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				ctx := cmd.Context()
				if baseURL == "" {
					if err := a.backend.EnsureConfigured(ctx); err != nil {
						return fmt.Errorf("Health check failed: %w", err)
					}
				}
				if err := a.backend.HealthCheck(ctx, baseURL); err != nil {
					return fmt.Errorf("Health check failed: %w", err)
				}
				return writePlain(cmd.OutOrStdout(), "Backend is healthy.\n")
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "probe this base URL instead of the configured one")
	return cmd
}
