package scopeddb

import "context"

// Store is the generic relational backend. It applies filters as given; the
// gateway is the only caller and owns tenant scoping.
type Store interface {
	Select(ctx context.Context, collection string, q Query) ([]Row, error)
	Insert(ctx context.Context, collection string, rows []Row) ([]Row, error)
	Update(ctx context.Context, collection string, values Row, filters []Filter) (int64, error)
	Delete(ctx context.Context, collection string, filters []Filter) (int64, error)
	Count(ctx context.Context, collection string, filters []Filter) (int64, error)
}
