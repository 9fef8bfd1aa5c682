// Package cli implements the reportsync command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reportsync",
	Short: "Incremental sync from the connectivity platform into the reporting store",
	Long: `reportsync copies endpoints, bundle instances, usage records and the bundle
catalog from the upstream REST API into PostgreSQL, resolves every record to a
canonical tenant, reconciles usage against bundle instances and refreshes the
reporting views.

Run a single pass with "reportsync run" or keep syncing on an interval with
"reportsync serve".`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/reportsync/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level: debug, info, warn, error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Logging.Level = level
	}
	cfg = c

	// Logs go to stderr so stdout stays parseable.
	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(c.Logging.Level), c.Logging.Format).
		With(logging.Service("reportsync"))
	logging.SetDefault(logger)
	return nil
}
