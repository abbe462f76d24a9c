package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/arvig-etl/internal/adapter/http"
	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/spf13/cobra"
)

var serveScrape bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the panels over HTTP and refresh them periodically",
	Long: `serve starts the HTTP API (/healthz, /readyz, /metrics, /api/panel,
/api/summary) and refreshes the panels immediately and then every
REFRESH_INTERVAL. Panels stored in SQLite by an earlier run are served
until the first refresh completes.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger, observability.NewMetrics(), serveScrape)
		if err != nil {
			return err
		}
		defer a.close()

		if a.store != nil {
			panels, err := a.store.Load(ctx)
			if err != nil {
				logger.Warn("could not load stored panels", "error", err)
			} else {
				a.pipeline.Seed(panels)
				logger.Info("stored panels loaded", "panels", len(panels))
			}
		}

		srv := httpadapter.NewServer(cfg.HTTPAddr, a.pipeline, a.pipeline, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
				stop()
			}
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := a.pipeline.Run(ctx, cfg.RefreshInterval); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("refresh still running at shutdown deadline")
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveScrape, "scrape", true, "fetch missing and current years from the chronicle on every refresh")
	rootCmd.AddCommand(serveCmd)
}
