package cli

import (
	"context"

	"examportal/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

type rootOptions struct {
	logLevel string
	cfg      app.Config
	log      *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "examportal",
		Short:         "Online exam platform: exams, attempts, scoring and leaderboards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = app.LoadConfig()
			level := opts.cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				level = opts.logLevel
			}
			opts.log = app.NewLogger(level)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (overrides LOG_LEVEL)")
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newExamCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	return cmd
}
