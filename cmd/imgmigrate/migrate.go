package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
	"imgmigrate/internal/store"
)

func newMigrateCmd(cfg *config.Config, out *outputMode) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !inspect && !dryRun {
				// Open applies pending migrations.
				st, err := openStore(cfg)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				st.Close()
				if !out.structured() {
					return writePlain(w, "Migrations applied successfully.\n")
				}
			}

			plan, err := migrationPlan(cfg)
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if out.structured() {
				return out.write(w, plan)
			}
			return writeMigrationPlan(w, plan)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func migrationPlan(cfg *config.Config) (*store.MigrationStatus, error) {
	db, err := store.OpenRaw(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db, cfg.DB.Driver, store.Options{TablePrefix: cfg.DB.TablePrefix})
}

func writeMigrationPlan(w io.Writer, plan *store.MigrationStatus) error {
	if err := writePlain(w, "Current version: %d\nAvailable version: %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		return writePlain(w, "No pending migrations.\n")
	}
	if err := writePlain(w, "Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain(w, "  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
