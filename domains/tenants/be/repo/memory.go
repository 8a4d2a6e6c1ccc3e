package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// MemoryRepository is an in-memory tenant registry for tests and local
// development. It serves both the admin service and the resolver.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]tenant.Tenant
	bySlug   map[string]uuid.UUID
	byDomain map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[uuid.UUID]tenant.Tenant),
		bySlug:   make(map[string]uuid.UUID),
		byDomain: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) List(ctx context.Context) ([]tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]tenant.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		items = append(items, t.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[t.Slug]; exists {
		return tenant.Tenant{}, service.ErrConflictSlug
	}
	if t.CustomDomain != nil {
		if _, exists := r.byDomain[*t.CustomDomain]; exists {
			return tenant.Tenant{}, service.ErrConflictSlug
		}
	}

	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.ApplyDefaults()
	r.put(t)
	return t.Clone(), nil
}

func (r *MemoryRepository) Save(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[t.ID]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}
	if id, exists := r.bySlug[t.Slug]; exists && id != t.ID {
		return tenant.Tenant{}, service.ErrConflictSlug
	}
	if t.CustomDomain != nil {
		if id, exists := r.byDomain[*t.CustomDomain]; exists && id != t.ID {
			return tenant.Tenant{}, service.ErrConflictSlug
		}
	}

	t.Features = current.Features
	t.Branding = current.Branding
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	r.remove(current)
	r.put(t)
	return t.Clone(), nil
}

func (r *MemoryRepository) SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
	return r.mutate(id, func(t *tenant.Tenant) { t.Branding = b })
}

func (r *MemoryRepository) SetFeatures(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error) {
	return r.mutate(id, func(t *tenant.Tenant) {
		for k, v := range f {
			t.Features[k] = v
		}
	})
}

// ByID implements tenant.Store.
func (r *MemoryRepository) ByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t.Clone(), nil
}

// BySlug implements tenant.Store.
func (r *MemoryRepository) BySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[strings.ToLower(slug)]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// ByDomain implements tenant.Store.
func (r *MemoryRepository) ByDomain(ctx context.Context, domain string) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDomain[strings.ToLower(domain)]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// ListByIDs implements tenant.Store.
func (r *MemoryRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tenant.Tenant, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.byID[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) mutate(id uuid.UUID, fn func(t *tenant.Tenant)) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}
	t = t.Clone()
	fn(&t)
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return t.Clone(), nil
}

func (r *MemoryRepository) put(t tenant.Tenant) {
	r.byID[t.ID] = t.Clone()
	r.bySlug[t.Slug] = t.ID
	if t.CustomDomain != nil {
		r.byDomain[*t.CustomDomain] = t.ID
	}
}

func (r *MemoryRepository) remove(t tenant.Tenant) {
	delete(r.bySlug, t.Slug)
	if t.CustomDomain != nil {
		delete(r.byDomain, *t.CustomDomain)
	}
}

// Ensure interface compliance.
var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ tenant.Store       = (*MemoryRepository)(nil)
)
