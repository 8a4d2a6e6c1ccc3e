package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema holds the platform tables.
const DefaultSchema = "palmyra"

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DB runs statements inside transactions whose search_path is the platform
// schema, so stores use unqualified table names.
type DB struct {
	pool   txBeginner
	schema string
}

// DBConfig configures a DB.
type DBConfig struct {
	Pool   *pgxpool.Pool
	Schema string
}

// NewDB builds a DB. An empty schema selects DefaultSchema.
func NewDB(cfg DBConfig) *DB {
	if cfg.Pool == nil {
		panic("persistence: pool is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = DefaultSchema
	}
	return &DB{pool: cfg.Pool, schema: schema}
}

// Schema returns the platform schema name.
func (db *DB) Schema() string { return db.schema }

// WithTx executes fn inside a read-write transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{}, fn)
}

// ReadTx executes fn inside a read-only transaction.
func (db *DB) ReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (db *DB) run(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
