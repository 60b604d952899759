package main

import (
	"errors"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
	"imgmigrate/internal/models"
	"imgmigrate/internal/store"
)

func newLogCmd(cfg *config.Config, out *outputMode) *cobra.Command {
	var filter store.RecordFilter

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List migrated images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.PostID > 0 && filter.DiscussionID > 0 {
				return errors.New("use either --post or --discussion, not both")
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.ListMigrationRecords(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if out.structured() {
				if records == nil {
					records = []models.MigrationRecord{}
				}
				return out.write(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				return writePlain(cmd.OutOrStdout(), "No migrated images recorded.\n")
			}
			for _, rec := range records {
				if err := writePlain(cmd.OutOrStdout(), "%s  discussion #%d  post #%d\n  %s\n  -> %s\n",
					formatTime(rec.CreatedAt), rec.DiscussionID, rec.PostID, rec.OriginalURL, rec.NewURL); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&filter.PostID, "post", 0, "only entries for this post")
	cmd.Flags().Int64Var(&filter.DiscussionID, "discussion", 0, "only entries for this discussion")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "maximum entries to show")
	return cmd
}
