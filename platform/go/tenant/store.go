package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Errors returned by the resolver and tenant stores.
var (
	ErrNotFound           = errors.New("tenant not found")
	ErrNoTenantApplicable = errors.New("no tenant applicable")
	ErrUnauthenticated    = errors.New("authentication required")
)

// Store is the authoritative tenant registry. Lookups return ErrNotFound
// when nothing matches. Implementations read the base record, features and
// branding in one logical read.
type Store interface {
	ByID(ctx context.Context, id uuid.UUID) (Tenant, error)
	BySlug(ctx context.Context, slug string) (Tenant, error)
	ByDomain(ctx context.Context, domain string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Tenant, error)
}

// Cache is the Tenant Context Cache consulted by the resolver.
type Cache interface {
	Get(ctx context.Context, key string) (Tenant, bool)
	Set(ctx context.Context, key string, t Tenant)
	Invalidate(ctx context.Context, key string)
}

// CacheKey is the canonical cache key of a tenant. Host lookups are mapped
// to an id first so each tenant has a single entry.
func CacheKey(id uuid.UUID) string {
	return "tenant:" + id.String()
}

// SelectionStore persists the tenant each user last switched to.
type SelectionStore interface {
	Selected(ctx context.Context, userID string) (uuid.UUID, bool, error)
	Select(ctx context.Context, userID string, tenantID uuid.UUID) error
}

// MemorySelections keeps selections in process.
type MemorySelections struct {
	mu  sync.RWMutex
	sel map[string]uuid.UUID
}

// NewMemorySelections returns an empty MemorySelections.
func NewMemorySelections() *MemorySelections {
	return &MemorySelections{sel: make(map[string]uuid.UUID)}
}

// Selected implements SelectionStore.
func (m *MemorySelections) Selected(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sel[userID]
	return id, ok, nil
}

// Select implements SelectionStore.
func (m *MemorySelections) Select(ctx context.Context, userID string, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel[userID] = tenantID
	return nil
}
