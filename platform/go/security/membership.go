package security

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

// Membership is a User-Tenant relationship.
type Membership struct {
	UserID    string
	TenantID  uuid.UUID
	Role      auth.Role
	Active    bool
	Metadata  map[string]any
	CreatedAt time.Time
}

// MembershipReader looks up User-Tenant relationships.
type MembershipReader interface {
	// ActiveMembership returns the active relationship for (userID, tenantID), if any.
	ActiveMembership(ctx context.Context, userID string, tenantID uuid.UUID) (Membership, bool, error)
	// ActiveMemberships lists every active relationship of userID.
	ActiveMemberships(ctx context.Context, userID string) ([]Membership, error)
}

// AdminRoleReader resolves the global admin role of a user.
type AdminRoleReader interface {
	AdminRole(ctx context.Context, userID string) (auth.Role, bool, error)
}
