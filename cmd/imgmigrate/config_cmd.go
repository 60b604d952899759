package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"imgmigrate/internal/backend"
	"imgmigrate/internal/config"
	"imgmigrate/internal/models"
	"imgmigrate/internal/settings"
)

const maskedSecret = "********"

type healthProber interface {
	HealthCheck(ctx context.Context, baseURLOverride string) error
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd(cfg))
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  requireExactlyArgs(1, "usage: config get <key>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			if config.IsSecretKey(key) && value != "" && !reveal {
				value = maskedSecret
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", value)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secret values in clear text")
	return cmd
}

func newConfigSetCmd(cfg *config.Config) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long:  "Set a config value. Backend keys are normalized and the resulting base URL is health-checked before saving.",
		Args:  requireExactlyArgs(2, "usage: config set <key> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := prepareBackendValue(cmd.Context(), newProbe(cfg), key, args[1], cfg.Backend.BaseURL)
			if err != nil {
				return err
			}

			var path string
			if global {
				path, err = config.GlobalPath()
			} else {
				path, err = config.ProjectPath()
			}
			if err != nil {
				return err
			}

			return config.SetKey(path, key, value)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.imgmigrate.toml)")
	return cmd
}

// newProbe builds a backend client used only for health checks with an
// explicit base URL.
func newProbe(cfg *config.Config) healthProber {
	return backend.NewClient(nil, backend.Options{
		Timeout:        cfg.Backend.Timeout,
		ConnectTimeout: cfg.Backend.ConnectTimeout,
	})
}

type backendField int

const (
	notBackendField backendField = iota
	backendBaseURLField
	backendEnvField
	backendAPIKeyField
)

func backendFieldOf(key string) backendField {
	switch key {
	case "backend.base_url", settings.KeyBackendBaseURL:
		return backendBaseURLField
	case "backend.env", settings.KeyBackendEnv:
		return backendEnvField
	case "backend.api_key", settings.KeyBackendAPIKey:
		return backendAPIKeyField
	default:
		return notBackendField
	}
}

// prepareBackendValue normalizes a backend value and probes the base URL it
// would be used with. Non-backend keys pass through unchanged.
func prepareBackendValue(ctx context.Context, probe healthProber, key, value, currentBaseURL string) (string, error) {
	baseURL := currentBaseURL
	switch backendFieldOf(key) {
	case notBackendField:
		return value, nil
	case backendBaseURLField:
		value = backend.NormalizeBaseURL(value)
		baseURL = value
	case backendEnvField:
		value = string(models.NormalizeEnvironment(value))
	}

	baseURL = backend.NormalizeBaseURL(baseURL)
	if baseURL == "" {
		return value, nil
	}
	if err := probe.HealthCheck(ctx, baseURL); err != nil {
		return "", fmt.Errorf("%s not saved: %w", key, err)
	}
	return value, nil
}
