package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	membershipsrepo "github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/repo"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// devDirectory answers membership and admin lookups when the API runs
// without Postgres. Memberships are read from the in-memory user_tenants
// collection; admin roles are taken from the caller's token claims.
type devDirectory struct {
	store *scopeddb.MemoryStore
}

func (d devDirectory) ActiveMembership(ctx context.Context, userID string, tenantID uuid.UUID) (security.Membership, bool, error) {
	all, err := d.ActiveMemberships(ctx, userID)
	if err != nil {
		return security.Membership{}, false, err
	}
	for _, m := range all {
		if m.TenantID == tenantID {
			return m, true, nil
		}
	}
	return security.Membership{}, false, nil
}

func (d devDirectory) ActiveMemberships(ctx context.Context, userID string) ([]security.Membership, error) {
	var out []security.Membership
	for _, row := range d.store.All(membershipsrepo.Collection) {
		if fmt.Sprint(row["user_id"]) != userID || row["is_active"] != true {
			continue
		}
		tenantID, err := uuid.Parse(fmt.Sprint(row[scopeddb.TenantColumn]))
		if err != nil {
			return nil, fmt.Errorf("membership %v: %w", row["id"], err)
		}
		role, err := platformauth.ParseRole(fmt.Sprint(row["role"]))
		if err != nil {
			return nil, fmt.Errorf("membership %v: %w", row["id"], err)
		}
		m := security.Membership{UserID: userID, TenantID: tenantID, Role: role, Active: true}
		if md, ok := row["metadata"].(map[string]any); ok {
			m.Metadata = md
		}
		if ts, ok := row["created_at"].(time.Time); ok {
			m.CreatedAt = ts
		}
		out = append(out, m)
	}
	return out, nil
}

// AdminRole trusts the adminRole claim of the acting user. Unsigned dev
// tokens make this unsafe anywhere but a local machine.
func (d devDirectory) AdminRole(ctx context.Context, userID string) (platformauth.Role, bool, error) {
	creds, ok := platformauth.UserFromContext(ctx)
	if !ok || creds.Id != userID || creds.AdminRole == nil {
		return "", false, nil
	}
	return *creds.AdminRole, true, nil
}

var (
	_ security.MembershipReader = devDirectory{}
	_ security.AdminRoleReader  = devDirectory{}
)
