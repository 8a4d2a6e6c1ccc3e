package scopeddb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
// Inserted rows without an id get a random uuid.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Row
}

// NewMemoryStore returns a MemoryStore that accepts the given collections.
func NewMemoryStore(collections ...string) *MemoryStore {
	s := &MemoryStore{collections: make(map[string][]Row, len(collections))}
	for _, c := range collections {
		s.collections[c] = nil
	}
	return s
}

// Seed appends rows to collection verbatim.
func (s *MemoryStore) Seed(collection string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.collections[collection] = append(s.collections[collection], r.Clone())
	}
}

// All returns every row of collection, unfiltered.
func (s *MemoryStore) All(collection string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		out = append(out, r.Clone())
	}
	return out
}

func (s *MemoryStore) Select(ctx context.Context, collection string, q Query) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	var out []Row
	for _, r := range rows {
		if matches(r, q.Filters) {
			out = append(out, project(r, q.Columns))
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][q.OrderBy]), fmt.Sprint(out[j][q.OrderBy])
			if q.Desc {
				return a > b
			}
			return a < b
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []Row{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, rows []Row) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		stored := r.Clone()
		if _, ok := stored["id"]; !ok {
			stored["id"] = uuid.NewString()
		}
		s.collections[collection] = append(s.collections[collection], stored)
		out = append(out, stored.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, values Row, filters []Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	var n int64
	for _, r := range rows {
		if !matches(r, filters) {
			continue
		}
		for k, v := range values {
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, filters []Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	kept := rows[:0]
	var n int64
	for _, r := range rows {
		if matches(r, filters) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.collections[collection] = kept
	return n, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	var n int64
	for _, r := range rows {
		if matches(r, filters) {
			n++
		}
	}
	return n, nil
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(r[f.Column]) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func project(r Row, columns []string) Row {
	if len(columns) == 0 {
		return r.Clone()
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}
