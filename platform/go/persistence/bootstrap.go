package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-agri-admin/database"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// DefaultPlanID is the plan assigned to new tenants.
const DefaultPlanID = "starter"

// Bootstrap creates schema (if missing) and applies the platform DDL in a
// single transaction, in this order:
//  1. platform/tenants.sql
//  2. platform/access.sql
//  3. tenant_space/records.sql
//
// It then seeds the feature catalog and the default plan. SQL is embedded at
// build time and every statement is idempotent.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap: pool is required")
	}
	if schema == "" {
		schema = DefaultSchema
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.TenantsSQL)...)
	statements = append(statements, splitStatements(sqlassets.AccessSQL)...)
	statements = append(statements, splitStatements(sqlassets.RecordsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	for _, f := range tenant.KnownFeatures {
		if _, err := tx.Exec(ctx, `INSERT INTO feature_catalog (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, string(f)); err != nil {
			return fmt.Errorf("seed feature %s: %w", f, err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO subscription_plans (id, name) VALUES ($1, 'Starter') ON CONFLICT (id) DO NOTHING`, DefaultPlanID); err != nil {
		return fmt.Errorf("seed plan: %w", err)
	}

	return tx.Commit(ctx)
}

func splitStatements(sql string) []string {
	raw := strings.Split(sql, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
