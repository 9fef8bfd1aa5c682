package cli

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/reportsync/internal/tenant"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Print the canonical tenant forest",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tenant.Default()
		out := newPrinter(cmd.OutOrStdout(), false)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return out.json(registry.Tenants())
		}

		t := newTable("TENANT_ID", "NAME", "ROLE", "PARENT")
		for _, ct := range registry.Tenants() {
			parent := "-"
			if ct.ParentTenantID != nil {
				parent = *ct.ParentTenantID
			}
			t.addRow(ct.TenantID, ct.TenantName, string(ct.Role), parent)
		}
		out.table(t)
		return nil
	},
}

func init() {
	tenantsCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(tenantsCmd)
}
