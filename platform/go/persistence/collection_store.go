package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
)

// CollectionStore is the Postgres backend of the scoped gateway. Each
// collection is a table in the platform schema.
type CollectionStore struct {
	db *DB
}

// NewCollectionStore builds a CollectionStore.
func NewCollectionStore(db *DB) *CollectionStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &CollectionStore{db: db}
}

func (s *CollectionStore) Select(ctx context.Context, collection string, q scopeddb.Query) ([]scopeddb.Row, error) {
	sql, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, err
	}

	var out []scopeddb.Row
	err = s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		out = make([]scopeddb.Row, 0, len(maps))
		for _, m := range maps {
			out = append(out, toRow(m))
		}
		return nil
	})
	if err != nil {
		return nil, mapCollectionError(collection, err)
	}
	return out, nil
}

func (s *CollectionStore) Insert(ctx context.Context, collection string, rows []scopeddb.Row) ([]scopeddb.Row, error) {
	out := make([]scopeddb.Row, 0, len(rows))
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, r := range rows {
			sql, args, err := buildInsert(collection, r)
			if err != nil {
				return err
			}
			res, err := tx.Query(ctx, sql, args...)
			if err != nil {
				return err
			}
			m, err := pgx.CollectExactlyOneRow(res, pgx.RowToMap)
			if err != nil {
				return err
			}
			out = append(out, toRow(m))
		}
		return nil
	})
	if err != nil {
		return nil, mapCollectionError(collection, err)
	}
	return out, nil
}

func (s *CollectionStore) Update(ctx context.Context, collection string, values scopeddb.Row, filters []scopeddb.Filter) (int64, error) {
	sql, args, err := buildUpdate(collection, values, filters)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, collection, sql, args)
}

func (s *CollectionStore) Delete(ctx context.Context, collection string, filters []scopeddb.Filter) (int64, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, collection, "DELETE FROM "+table+where, args)
}

func (s *CollectionStore) Count(ctx context.Context, collection string, filters []scopeddb.Filter) (int64, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+where, args...).Scan(&n)
	})
	if err != nil {
		return 0, mapCollectionError(collection, err)
	}
	return n, nil
}

func (s *CollectionStore) exec(ctx context.Context, collection, sql string, args []any) (int64, error) {
	var n int64
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, mapCollectionError(collection, err)
	}
	return n, nil
}

func buildSelect(collection string, q scopeddb.Query) (string, []any, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(q.Columns) > 0 {
		idents := make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			ident, err := columnIdent(c)
			if err != nil {
				return "", nil, err
			}
			idents = append(idents, ident)
		}
		cols = strings.Join(idents, ", ")
	}

	where, args, err := buildWhere(q.Filters, 1)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + table + where)
	if q.OrderBy != "" {
		ident, err := columnIdent(q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ORDER BY " + ident)
		if q.Desc {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return b.String(), args, nil
}

func buildInsert(collection string, row scopeddb.Row) (string, []any, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return "", nil, err
	}
	if len(row) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES RETURNING *", nil, nil
	}

	keys := sortedKeys(row)
	idents := make([]string, 0, len(keys))
	params := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		ident, err := columnIdent(k)
		if err != nil {
			return "", nil, err
		}
		idents = append(idents, ident)
		params = append(params, "$"+strconv.Itoa(i+1))
		args = append(args, row[k])
	}

	sql := "INSERT INTO " + table + " (" + strings.Join(idents, ", ") + ") VALUES (" +
		strings.Join(params, ", ") + ") RETURNING *"
	return sql, args, nil
}

func buildUpdate(collection string, values scopeddb.Row, filters []scopeddb.Filter) (string, []any, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, errors.New("update requires at least one column")
	}

	keys := sortedKeys(values)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+len(filters))
	for i, k := range keys {
		ident, err := columnIdent(k)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, ident+" = $"+strconv.Itoa(i+1))
		args = append(args, values[k])
	}

	where, whereArgs, err := buildWhere(filters, len(args)+1)
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + where, append(args, whereArgs...), nil
}

// buildWhere renders filters as a conjunction of equality predicates with
// placeholders numbered from start.
func buildWhere(filters []scopeddb.Filter, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	preds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		ident, err := columnIdent(f.Column)
		if err != nil {
			return "", nil, err
		}
		if f.Value == nil {
			preds = append(preds, ident+" IS NULL")
			continue
		}
		preds = append(preds, ident+" = $"+strconv.Itoa(start+len(args)))
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(preds, " AND "), args, nil
}

func tableIdent(collection string) (string, error) {
	name, err := normalizeTableName(collection)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func columnIdent(column string) (string, error) {
	if !scopeddb.ValidIdentifier(column) {
		return "", fmt.Errorf("invalid column name %q", column)
	}
	return pgx.Identifier{column}.Sanitize(), nil
}

func sortedKeys(r scopeddb.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toRow converts driver values into the JSON-friendly forms the gateway
// exchanges with handlers.
func toRow(m map[string]any) scopeddb.Row {
	out := make(scopeddb.Row, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case [16]byte:
			out[k] = uuid.UUID(tv).String()
		case pgtype.Numeric:
			f, err := tv.Float64Value()
			if err != nil || !f.Valid {
				out[k] = nil
				continue
			}
			out[k] = f.Float64
		default:
			out[k] = v
		}
	}
	return out
}

func mapCollectionError(collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", scopeddb.ErrUnknownCollection, collection)
	}
	return mapWriteError(err)
}

var _ scopeddb.Store = (*CollectionStore)(nil)
