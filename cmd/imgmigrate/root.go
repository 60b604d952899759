package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	out := &outputMode{}
	var logLevel string

	cmd := &cobra.Command{
		Use:           "imgmigrate",
		Short:         "Imgmigrate finds externally hosted images in forum posts and moves them to the asset backend",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := setupLogging(cmd.ErrOrStderr(), logLevel, os.Getenv(logLevelEnvKey), cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warning)
			}
			return out.validate()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&out.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newCheckCmd(cfg, out),
		newScheduledCheckCmd(cfg, out),
		newHealthCmd(cfg),
		newLogCmd(cfg, out),
		newMigrateCmd(cfg, out),
		newImportCmd(cfg, out),
		newSettingsCmd(cfg),
		newConfigCmd(cfg),
	)

	return cmd
}
