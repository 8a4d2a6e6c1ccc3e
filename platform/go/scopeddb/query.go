package scopeddb

import (
	"regexp"
)

// TenantColumn is the column that partitions every scoped collection.
const TenantColumn = "tenant_id"

// Row is a record exchanged with the Store. Keys are column names.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter is an equality predicate column = value.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality Filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Query describes a read. Empty Columns selects every column.
type Query struct {
	Columns []string
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidIdentifier reports whether name is usable as a collection or column name.
func ValidIdentifier(name string) bool {
	return len(name) <= 63 && identifierPattern.MatchString(name)
}

func withTenant(filters []Filter, tenantID string) []Filter {
	out := make([]Filter, 0, len(filters)+1)
	for _, f := range filters {
		if f.Column == TenantColumn {
			continue
		}
		out = append(out, f)
	}
	return append(out, Eq(TenantColumn, tenantID))
}
