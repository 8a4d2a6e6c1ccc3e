package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// PostgresRepository implements the tenant repository using the shared persistence layer.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) List(ctx context.Context) ([]tenant.Tenant, error) {
	return r.store.List(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	t, err := r.store.ByID(ctx, id)
	return t, mapError(err)
}

func (r *PostgresRepository) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	created, err := r.store.Create(ctx, t)
	return created, mapError(err)
}

func (r *PostgresRepository) Save(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	saved, err := r.store.Save(ctx, t)
	return saved, mapError(err)
}

func (r *PostgresRepository) SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
	t, err := r.store.SetBranding(ctx, id, b)
	return t, mapError(err)
}

func (r *PostgresRepository) SetFeatures(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error) {
	t, err := r.store.SetFeatures(ctx, id, f)
	return t, mapError(err)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tenant.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return service.ErrConflictSlug
	default:
		return err
	}
}

var _ service.Repository = (*PostgresRepository)(nil)
