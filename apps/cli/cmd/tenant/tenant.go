package tenantcmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// Command groups tenant registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

type dbFlags struct {
	databaseURL string
	schema      string
}

func (f *dbFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&f.schema, "schema", persistence.DefaultSchema, "Schema holding the platform tables")
	_ = c.MarkFlagRequired("database-url")
}

// withService opens the registry and runs fn with a tenant service that
// records its audit events in the security event store.
func (f *dbFlags) withService(ctx context.Context, fn func(*service.Service) error) error {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	db := persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: f.schema})
	validator := security.NewValidator(security.Config{
		Memberships: persistence.NewMembershipStore(db),
		Admins:      persistence.NewAdminStore(db),
		Sink:        persistence.NewSecurityEventStore(db),
	})
	svc := service.New(repo.NewPostgresRepository(persistence.NewTenantStore(db)), noopInvalidator{}, validator)
	return fn(svc)
}

func createCommand() *cobra.Command {
	var (
		flags        dbFlags
		slug         string
		name         string
		planID       string
		status       string
		customDomain string
		features     []string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant with its enabled features",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			input := service.CreateInput{
				Name:     name,
				Slug:     slug,
				PlanID:   planID,
				Features: tenant.Features{},
			}
			if status != "" {
				st := tenant.Status(status)
				input.Status = &st
			}
			if d := strings.TrimSpace(customDomain); d != "" {
				input.CustomDomain = &d
			}
			for _, f := range features {
				input.Features[tenant.Feature(strings.TrimSpace(f))] = true
			}

			return flags.withService(ctx, func(svc *service.Service) error {
				t, err := svc.Create(ctx, input)
				if errors.Is(err, service.ErrConflictSlug) {
					return fmt.Errorf("tenant %q already exists", slug)
				}
				if err != nil {
					return fmt.Errorf("create tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant created: %s (%s) status=%s\n", t.Slug, t.ID, t.Status)
				return nil
			})
		},
	}

	flags.bind(c)
	c.Flags().StringVar(&slug, "slug", "", "Tenant slug (lowercase, digits and dashes)")
	c.Flags().StringVar(&name, "name", "", "Display name")
	c.Flags().StringVar(&planID, "plan-id", "", "Subscription plan id")
	c.Flags().StringVar(&status, "status", "", "Initial status (defaults to trial)")
	c.Flags().StringVar(&customDomain, "custom-domain", "", "Custom domain served for the tenant")
	c.Flags().StringSliceVar(&features, "features", nil, "Features to enable (comma-separated, e.g. farmer_management,dealer_network)")

	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("name")

	return c
}

func listCommand() *cobra.Command {
	var (
		flags  dbFlags
		status string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			opts := service.ListOptions{Page: 1, PageSize: 100}
			if status != "" {
				st := tenant.Status(status)
				opts.Status = &st
			}

			return flags.withService(ctx, func(svc *service.Service) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tNAME\tSTATUS")
				for {
					res, err := svc.List(ctx, opts)
					if err != nil {
						return err
					}
					for _, t := range res.Tenants {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Name, t.Status)
					}
					if res.Page >= res.TotalPages {
						break
					}
					opts.Page++
				}
				return w.Flush()
			})
		},
	}

	flags.bind(c)
	c.Flags().StringVar(&status, "status", "", "Only list tenants in this status")
	return c
}

// noopInvalidator satisfies the service; the CLI holds no tenant cache and
// API replicas expire their entries by TTL.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) {}
