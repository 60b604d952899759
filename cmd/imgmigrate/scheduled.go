package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
	"imgmigrate/internal/scan"
	"imgmigrate/internal/settings"
)

type scheduleReader interface {
	Schedule(ctx context.Context) (settings.Schedule, error)
}

func newScheduledCheckCmd(cfg *config.Config, out *outputMode) *cobra.Command {
	var (
		printCron bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "scheduled-check",
		Short: "Run the periodic all-posts check and mail the report",
		Long: "Runs a report-only check over all posts and mails it to the scheduled recipients.\n" +
			"Schedule it from cron; --print-cron prints the entry for the configured frequency.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				w := cmd.OutOrStdout()
				if quiet {
					w = io.Discard
				}
				if printCron {
					return printScheduleCron(cmd.Context(), a.settings, cmd.OutOrStdout())
				}
				defer a.pushMetrics(cmd.Context())
				return runScheduledCheck(cmd.Context(), a.settings, a.checkDeps(), w, out)
			})
		},
	}

	cmd.Flags().BoolVar(&printCron, "print-cron", false, "print the crontab schedule for the configured frequency")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress output")

	return cmd
}

func printScheduleCron(ctx context.Context, schedules scheduleReader, w io.Writer) error {
	schedule, err := schedules.Schedule(ctx)
	if err != nil {
		return err
	}
	return writePlain(w, "%s\n", schedule.Cron())
}

func runScheduledCheck(ctx context.Context, schedules scheduleReader, deps checkDeps, w io.Writer, out *outputMode) error {
	schedule, err := schedules.Schedule(ctx)
	if err != nil {
		return err
	}
	plain := out.plainWriter(w)
	if !schedule.Enabled {
		return writePlain(plain, "Scheduled external images checks are disabled.\n")
	}

	if err := writePlain(plain, "Running scheduled external images check...\n"); err != nil {
		return err
	}
	if err := runCheck(ctx, deps, checkRequest{scope: scan.AllScope(), mailto: schedule.Emails}, w, out); err != nil {
		return err
	}
	return writePlain(plain, "Scheduled check completed.\n")
}
