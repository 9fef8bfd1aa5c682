package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/reportsync/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for POST /api/v1/sync/trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := auth.NewTokenVerifier(cfg.Auth.TriggerSecret).Issue(subject, ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "reportsync-cli", "token subject recorded in the trigger log")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default 24h)")
	rootCmd.AddCommand(tokenCmd)
}
