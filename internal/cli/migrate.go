package cli

import (
	"examportal/internal/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down {
				return db.Rollback(cmd.Context(), opts.cfg.DBDSN, opts.log)
			}
			return db.Migrate(cmd.Context(), opts.cfg.DBDSN, opts.log)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	return cmd
}
