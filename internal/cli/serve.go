package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"examportal/internal/app"
	"examportal/internal/app/apiresp"
	"examportal/internal/app/observability"
	"examportal/internal/db"

	"github.com/spf13/cobra"
)

var version = "dev"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		inMemory bool
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.HTTPAddr = addr
			}
			return runServer(cmd.Context(), opts, inMemory, migrate)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use in-process stores instead of Postgres")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServer(ctx context.Context, opts *rootOptions, inMemory, migrate bool) error {
	cfg, log := opts.cfg, opts.log
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		svcs *app.Services
		err  error
	)
	if inMemory {
		log.Warn("serving from in-memory stores, data is lost on exit")
		svcs, err = app.BuildMemoryServices(ctx, cfg, log)
	} else {
		if migrate {
			if err := db.Migrate(ctx, cfg.DBDSN, log); err != nil {
				return err
			}
		}
		svcs, err = app.BuildServices(ctx, cfg, log)
	}
	if err != nil {
		return err
	}
	defer svcs.Close()

	reporter := observability.NewReporter(observability.ReporterConfig{
		Token:       cfg.RollbarToken,
		Environment: cfg.AppEnv,
		Version:     version,
	}, log)
	defer reporter.Close()
	apiresp.SetInternalReporter(reporter.ReportRequest)

	collector := observability.NewCollector(svcs.DB, log)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, svcs, collector, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("examportal listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
