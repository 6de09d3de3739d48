package cli

import (
	"encoding/json"

	"examportal/internal/app"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Platform statistics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Record a statistics snapshot (run from cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := app.BuildServices(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer svcs.Close()

			snap, err := svcs.Stats.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	})
	return cmd
}
