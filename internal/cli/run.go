package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/scheduler"
	"github.com/telhawk-systems/reportsync/migrations"
)

var errRunFailed = errors.New("sync run failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync pass and print its summary",
	Long: `Runs every table pipeline once, then the usage backfill and the view refresh.
Exits non-zero only when the run failed during setup; a partial run prints the
failing tables and exits zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		migrate, _ := cmd.Flags().GetBool("migrate")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if migrate {
			if err := migrations.Up(cfg.DatabaseURL()); err != nil {
				return err
			}
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := scheduler.New(a.orchestrator, 0, logger).RunOnce(ctx)
		if err != nil {
			return err
		}

		out := newPrinter(cmd.OutOrStdout(), !asJSON && isTerminal(cmd.OutOrStdout()))
		if asJSON {
			if err := out.json(summary); err != nil {
				return err
			}
		} else {
			out.summary(summary)
		}

		if summary.Status == models.StatusFailed {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("json", false, "print the summary as JSON")
	runCmd.Flags().Bool("migrate", false, "apply pending migrations first")
	rootCmd.AddCommand(runCmd)
}

func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
