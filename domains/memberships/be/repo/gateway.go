package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
)

// Collection is the scoped collection holding User-Tenant relationships.
const Collection = "user_tenants"

// GatewayRepository reads and writes memberships through the scoped gateway,
// so every call is tenant-checked and audited.
type GatewayRepository struct {
	gw *scopeddb.Gateway
}

// NewGatewayRepository constructs a GatewayRepository.
func NewGatewayRepository(gw *scopeddb.Gateway) *GatewayRepository {
	if gw == nil {
		panic("scoped gateway is required")
	}
	return &GatewayRepository{gw: gw}
}

func (r *GatewayRepository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]service.Member, error) {
	rows, err := r.gw.For(tenantID).From(Collection).Select(ctx, scopeddb.Query{
		Filters: []scopeddb.Filter{scopeddb.Eq("is_active", true)},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, err
	}
	out := make([]service.Member, 0, len(rows))
	for _, row := range rows {
		m, err := toMember(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *GatewayRepository) CountActive(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error) {
	return r.gw.For(tenantID).From(Collection).Count(ctx, scopeddb.Eq("user_id", userID), scopeddb.Eq("is_active", true))
}

func (r *GatewayRepository) Insert(ctx context.Context, tenantID uuid.UUID, m service.Member) (service.Member, error) {
	rows, err := r.gw.For(tenantID).From(Collection).Insert(ctx, scopeddb.Row{
		"user_id":   m.UserID,
		"role":      m.Role.String(),
		"is_active": true,
		"metadata":  m.Metadata,
	})
	if err != nil {
		return service.Member{}, err
	}
	if len(rows) != 1 {
		return service.Member{}, fmt.Errorf("insert membership: expected 1 row, got %d", len(rows))
	}
	return toMember(rows[0])
}

func (r *GatewayRepository) Deactivate(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error) {
	return r.gw.For(tenantID).From(Collection).Update(ctx,
		scopeddb.Row{"is_active": false},
		scopeddb.Eq("user_id", userID),
		scopeddb.Eq("is_active", true),
	)
}

func toMember(row scopeddb.Row) (service.Member, error) {
	m := service.Member{
		ID:     fmt.Sprint(row["id"]),
		UserID: fmt.Sprint(row["user_id"]),
	}

	tenantID, err := uuid.Parse(fmt.Sprint(row[scopeddb.TenantColumn]))
	if err != nil {
		return service.Member{}, fmt.Errorf("membership %s: invalid tenant id: %w", m.ID, err)
	}
	m.TenantID = tenantID

	role, err := platformauth.ParseRole(fmt.Sprint(row["role"]))
	if err != nil {
		return service.Member{}, fmt.Errorf("membership %s: %w", m.ID, err)
	}
	m.Role = role

	if md, ok := row["metadata"].(map[string]any); ok {
		m.Metadata = md
	} else {
		m.Metadata = map[string]any{}
	}
	switch ts := row["created_at"].(type) {
	case time.Time:
		m.CreatedAt = ts
	case string:
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return m, nil
}

var _ service.Repository = (*GatewayRepository)(nil)
