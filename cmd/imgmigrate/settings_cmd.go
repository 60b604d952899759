package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
	"imgmigrate/internal/settings"
)

var settingKeys = []string{
	settings.KeyAllowedOrigins,
	settings.KeyBackendBaseURL,
	settings.KeyBackendAPIKey,
	settings.KeyBackendEnv,
	settings.KeyScheduleEnabled,
	settings.KeyScheduleFrequency,
	settings.KeyScheduleEmails,
}

func isSettingKey(key string) bool {
	for _, k := range settingKeys {
		if k == key {
			return true
		}
	}
	return false
}

func newSettingsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or write the settings table",
	}
	cmd.AddCommand(newSettingsGetCmd(cfg), newSettingsSetCmd(cfg))
	return cmd
}

func newSettingsGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored setting",
		Args:  requireExactlyArgs(1, "usage: settings get <key>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !isSettingKey(key) {
				return fmt.Errorf("unknown setting: %s (allowed: %s)", key, strings.Join(settingKeys, ", "))
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			value, _, err := st.Setting(cmd.Context(), key)
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", value)
		},
	}
}

func newSettingsSetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting (standalone database only)",
		Args:  requireExactlyArgs(2, "usage: settings set <key> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !isSettingKey(key) {
				return fmt.Errorf("unknown setting: %s (allowed: %s)", key, strings.Join(settingKeys, ", "))
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			current, err := settings.NewProvider(st, settings.NewConfigSource(cfg)).Backend(cmd.Context())
			if err != nil {
				return err
			}
			value, err := prepareBackendValue(cmd.Context(), newProbe(cfg), key, args[1], current.BaseURL)
			if err != nil {
				return err
			}
			return st.PutSetting(cmd.Context(), key, value)
		},
	}
}
