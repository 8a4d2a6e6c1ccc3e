package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

const tenantColumns = `
    t.tenant_id, t.name, t.slug, t.custom_domain, t.status, t.plan_id,
    t.max_farmers, t.max_dealers, t.max_products, t.max_storage_mb, t.max_api_calls_per_day,
    (SELECT COUNT(*) FROM farmers f WHERE f.tenant_id = t.tenant_id),
    (SELECT COUNT(*) FROM dealers d WHERE d.tenant_id = t.tenant_id),
    (SELECT COUNT(*) FROM products p WHERE p.tenant_id = t.tenant_id),
    t.storage_used_mb, t.api_calls_today,
    t.allowed_origins, t.ip_allowlist, t.session_timeout_seconds, t.rate_limit_per_minute,
    b.app_name, b.primary_color, b.secondary_color, b.logo_url,
    COALESCE((SELECT jsonb_object_agg(tf.feature, tf.enabled) FROM tenant_features tf WHERE tf.tenant_id = t.tenant_id), '{}'::jsonb),
    t.created_at, t.updated_at`

const tenantFrom = `FROM tenants t LEFT JOIN tenant_branding b ON b.tenant_id = t.tenant_id`

// TenantStore is the Postgres tenant registry. Reads return the base record,
// features, branding and live usage counts in one query.
type TenantStore struct {
	db *DB
}

// NewTenantStore builds a TenantStore.
func NewTenantStore(db *DB) *TenantStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &TenantStore{db: db}
}

func (s *TenantStore) ByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.one(ctx, `WHERE t.tenant_id = $1`, id)
}

func (s *TenantStore) BySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	return s.one(ctx, `WHERE t.slug = $1`, slug)
}

func (s *TenantStore) ByDomain(ctx context.Context, domain string) (tenant.Tenant, error) {
	return s.one(ctx, `WHERE t.custom_domain = $1`, domain)
}

func (s *TenantStore) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.many(ctx, `ORDER BY t.name, t.tenant_id`)
}

func (s *TenantStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]tenant.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}
	return s.many(ctx, `WHERE t.tenant_id = ANY($1::uuid[]) ORDER BY t.name, t.tenant_id`, raw)
}

// Create inserts t with its features and branding and returns the stored snapshot.
func (s *TenantStore) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == uuid.Nil {
		return tenant.Tenant{}, errors.New("tenant id is required")
	}
	if t.PlanID == "" {
		t.PlanID = DefaultPlanID
	}

	var out tenant.Tenant
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO tenants (
                tenant_id, name, slug, custom_domain, status, plan_id,
                max_farmers, max_dealers, max_products, max_storage_mb, max_api_calls_per_day,
                allowed_origins, ip_allowlist, session_timeout_seconds, rate_limit_per_minute
            ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			t.ID, t.Name, t.Slug, t.CustomDomain, string(t.Status), t.PlanID,
			t.Limits.Farmers.Max, t.Limits.Dealers.Max, t.Limits.Products.Max, t.Limits.StorageMB.Max, t.Limits.APICallsPerDay.Max,
			nonNil(t.Security.AllowedOrigins), nonNil(t.Security.IPAllowlist),
			int(t.Security.SessionTimeout/time.Second), t.Security.RateLimitPerMinute,
		)
		if err != nil {
			return mapWriteError(err)
		}
		if err := upsertFeatures(ctx, tx, t.ID, t.Features); err != nil {
			return err
		}
		if err := upsertBranding(ctx, tx, t.ID, t.Branding); err != nil {
			return err
		}
		out, err = scanTenant(tx.QueryRow(ctx, `SELECT `+tenantColumns+` `+tenantFrom+` WHERE t.tenant_id = $1`, t.ID))
		return err
	})
	return out, err
}

// Save overwrites the base record of t. Features and branding are untouched.
func (s *TenantStore) Save(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	var out tenant.Tenant
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE tenants SET
                name = $2, slug = $3, custom_domain = $4, status = $5, plan_id = $6,
                max_farmers = $7, max_dealers = $8, max_products = $9, max_storage_mb = $10, max_api_calls_per_day = $11,
                allowed_origins = $12, ip_allowlist = $13, session_timeout_seconds = $14, rate_limit_per_minute = $15,
                updated_at = NOW()
            WHERE tenant_id = $1`,
			t.ID, t.Name, t.Slug, t.CustomDomain, string(t.Status), t.PlanID,
			t.Limits.Farmers.Max, t.Limits.Dealers.Max, t.Limits.Products.Max, t.Limits.StorageMB.Max, t.Limits.APICallsPerDay.Max,
			nonNil(t.Security.AllowedOrigins), nonNil(t.Security.IPAllowlist),
			int(t.Security.SessionTimeout/time.Second), t.Security.RateLimitPerMinute,
		)
		if err != nil {
			return mapWriteError(err)
		}
		if tag.RowsAffected() == 0 {
			return tenant.ErrNotFound
		}
		out, err = scanTenant(tx.QueryRow(ctx, `SELECT `+tenantColumns+` `+tenantFrom+` WHERE t.tenant_id = $1`, t.ID))
		return err
	})
	return out, err
}

// SetBranding replaces the branding record of tenant id.
func (s *TenantStore) SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
	return s.mutate(ctx, id, func(tx pgx.Tx) error {
		return upsertBranding(ctx, tx, id, b)
	})
}

// SetFeatures upserts the given flags; features not listed keep their value.
func (s *TenantStore) SetFeatures(ctx context.Context, id uuid.UUID, features tenant.Features) (tenant.Tenant, error) {
	return s.mutate(ctx, id, func(tx pgx.Tx) error {
		return upsertFeatures(ctx, tx, id, features)
	})
}

func (s *TenantStore) mutate(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx) error) (tenant.Tenant, error) {
	var out tenant.Tenant
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT tenant_id FROM tenants WHERE tenant_id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return tenant.ErrNotFound
			}
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE tenants SET updated_at = NOW() WHERE tenant_id = $1`, id); err != nil {
			return err
		}
		var err error
		out, err = scanTenant(tx.QueryRow(ctx, `SELECT `+tenantColumns+` `+tenantFrom+` WHERE t.tenant_id = $1`, id))
		return err
	})
	return out, err
}

func (s *TenantStore) one(ctx context.Context, where string, args ...any) (tenant.Tenant, error) {
	var out tenant.Tenant
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanTenant(tx.QueryRow(ctx, `SELECT `+tenantColumns+` `+tenantFrom+` `+where, args...))
		return err
	})
	return out, err
}

func (s *TenantStore) many(ctx context.Context, tail string, args ...any) ([]tenant.Tenant, error) {
	var out []tenant.Tenant
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+tenantColumns+` `+tenantFrom+` `+tail, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTenant(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

func upsertFeatures(ctx context.Context, tx pgx.Tx, id uuid.UUID, features tenant.Features) error {
	keys := make([]string, 0, len(features))
	for f := range features {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)

	for _, f := range keys {
		if _, err := tx.Exec(ctx, `
            INSERT INTO tenant_features (tenant_id, feature, enabled, updated_at)
            VALUES ($1, $2, $3, NOW())
            ON CONFLICT (tenant_id, feature) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`,
			id, f, features[tenant.Feature(f)],
		); err != nil {
			return fmt.Errorf("upsert feature %s: %w", f, err)
		}
	}
	return nil
}

func upsertBranding(ctx context.Context, tx pgx.Tx, id uuid.UUID, b tenant.Branding) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO tenant_branding (tenant_id, app_name, primary_color, secondary_color, logo_url, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (tenant_id) DO UPDATE SET
            app_name = EXCLUDED.app_name,
            primary_color = EXCLUDED.primary_color,
            secondary_color = EXCLUDED.secondary_color,
            logo_url = EXCLUDED.logo_url,
            updated_at = NOW()`,
		id, nullable(b.AppName), nullable(b.PrimaryColor), nullable(b.SecondaryColor), b.LogoURL,
	)
	if err != nil {
		return fmt.Errorf("upsert branding: %w", err)
	}
	return nil
}

func scanTenant(row pgx.Row) (tenant.Tenant, error) {
	var t tenant.Tenant
	var status string
	var sessionTimeout int
	var appName, primary, second *string
	var features map[string]bool
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.CustomDomain, &status, &t.PlanID,
		&t.Limits.Farmers.Max, &t.Limits.Dealers.Max, &t.Limits.Products.Max, &t.Limits.StorageMB.Max, &t.Limits.APICallsPerDay.Max,
		&t.Limits.Farmers.Current, &t.Limits.Dealers.Current, &t.Limits.Products.Current,
		&t.Limits.StorageMB.Current, &t.Limits.APICallsPerDay.Current,
		&t.Security.AllowedOrigins, &t.Security.IPAllowlist, &sessionTimeout, &t.Security.RateLimitPerMinute,
		&appName, &primary, &second, &t.Branding.LogoURL,
		&features,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, err
	}

	parsed, ok := tenant.ParseStatus(status)
	if !ok {
		return tenant.Tenant{}, fmt.Errorf("tenant %s has unknown status %q", t.ID, status)
	}
	t.Status = parsed
	t.Security.SessionTimeout = time.Duration(sessionTimeout) * time.Second
	t.Branding.AppName = deref(appName)
	t.Branding.PrimaryColor = deref(primary)
	t.Branding.SecondaryColor = deref(second)
	t.Features = make(tenant.Features, len(features))
	for k, v := range features {
		t.Features[tenant.Feature(k)] = v
	}
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ tenant.Store = (*TenantStore)(nil)
