package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/persistence"
)

// Notes/constraints:
// - Bootstrap is idempotent: DDL uses IF NOT EXISTS and seeds upsert.
// - The super admin grant only writes the registry; run `admin grant --sync-claims`
//   to mirror it into Firebase custom claims.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (schema, feature catalog, first super admin)",
	}

	cmd.AddCommand(platformCommand())
	return cmd
}

func platformCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		superAdmin  string
	)

	c := &cobra.Command{
		Use:   "platform",
		Short: "Create the platform schema and optionally grant the first super admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.Bootstrap(ctx, pool, schema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema %q is ready.\n", schema)

			superAdmin = strings.TrimSpace(superAdmin)
			if superAdmin == "" {
				return nil
			}
			admins := persistence.NewAdminStore(persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: schema}))
			grant, err := admins.Grant(ctx, superAdmin, platformauth.RoleSuperAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s.\n", grant.Role, grant.UserID)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the platform tables")
	c.Flags().StringVar(&superAdmin, "super-admin", "", "Firebase uid to grant super_admin (optional)")

	_ = c.MarkFlagRequired("database-url")

	return c
}
