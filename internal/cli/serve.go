package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/reportsync/internal/auth"
	"github.com/telhawk-systems/reportsync/internal/handlers"
	"github.com/telhawk-systems/reportsync/internal/scheduler"
	"github.com/telhawk-systems/reportsync/internal/server"
	"github.com/telhawk-systems/reportsync/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync on an interval and expose the status API",
	Long: `Applies pending migrations, then runs a sync pass every sync.interval and
serves the status API, /metrics and the health probes on server.port until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.InfoContext(ctx, "running database migrations")
		if err := migrations.Up(cfg.DatabaseURL()); err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		verifier := auth.NewTokenVerifier(cfg.Auth.TriggerSecret)
		if !verifier.Enabled() {
			logger.WarnContext(ctx, "auth.trigger_secret is empty, manual trigger disabled")
		}

		sched := scheduler.New(a.orchestrator, cfg.Sync.Interval, logger)
		h := handlers.NewHandler(sched, a.repo, verifier, logger).
			WithReadinessCheck("postgres", a.repo).
			WithReadinessCheck("watermarks", a.watermarks)
		srv := server.New(cfg.Server, server.NewRouter(h, logger, cfg.Server.CORSOrigins), logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx) })
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
