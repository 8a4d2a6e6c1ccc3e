package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/gcp"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/persistence"
)

// Command groups platform admin registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage global admin roles (super_admin, platform_admin, admin)",
	}

	cmd.AddCommand(grantCommand())
	cmd.AddCommand(revokeCommand())
	return cmd
}

type registryFlags struct {
	databaseURL string
	schema      string
	userID      string
	syncClaims  bool
}

func (f *registryFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&f.schema, "schema", persistence.DefaultSchema, "Schema holding the platform tables")
	c.Flags().StringVar(&f.userID, "user-id", "", "Firebase uid of the admin")
	c.Flags().BoolVar(&f.syncClaims, "sync-claims", false, "Mirror the change into Firebase custom claims")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("user-id")
}

// withRegistry opens the admin registry for the duration of fn.
func (f *registryFlags) withRegistry(ctx context.Context, fn func(*persistence.AdminStore) error) error {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	return fn(persistence.NewAdminStore(persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: f.schema})))
}

func (f *registryFlags) sync(ctx context.Context, role *platformauth.Role) error {
	if !f.syncClaims {
		return nil
	}
	_, fbAuth, err := gcp.InitFirebaseAuth(ctx, gcp.OptionsFromEnv())
	if err != nil {
		return err
	}
	return gcp.NewClaimsSync(fbAuth).SetAdminRole(ctx, strings.TrimSpace(f.userID), role)
}

func grantCommand() *cobra.Command {
	var (
		flags registryFlags
		role  string
	)

	c := &cobra.Command{
		Use:   "grant",
		Short: "Grant a global admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			parsed, err := platformauth.ParseRole(role)
			if err != nil {
				return err
			}
			if !parsed.IsAdmin() {
				return fmt.Errorf("role %q is not an admin role", parsed)
			}

			err = flags.withRegistry(ctx, func(admins *persistence.AdminStore) error {
				grant, err := admins.Grant(ctx, strings.TrimSpace(flags.userID), parsed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s.\n", grant.Role, grant.UserID)
				return nil
			})
			if err != nil {
				return err
			}
			return flags.sync(ctx, &parsed)
		},
	}

	flags.bind(c)
	c.Flags().StringVar(&role, "role", string(platformauth.RolePlatformAdmin), "Admin role to grant")
	return c
}

func revokeCommand() *cobra.Command {
	var flags registryFlags

	c := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke the global admin role of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			err := flags.withRegistry(ctx, func(admins *persistence.AdminStore) error {
				revoked, err := admins.Revoke(ctx, strings.TrimSpace(flags.userID))
				if err != nil {
					return err
				}
				if !revoked {
					fmt.Fprintf(cmd.OutOrStdout(), "No active grant for %s.\n", flags.userID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked admin role of %s.\n", flags.userID)
				return nil
			})
			if err != nil {
				return err
			}
			return flags.sync(ctx, nil)
		},
	}

	flags.bind(c)
	return c
}
