package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

const membershipColumns = `user_id, tenant_id, role, is_active, metadata, created_at`

// MembershipStore reads User-Tenant relationships from user_tenants. Writes
// go through the scoped gateway.
type MembershipStore struct {
	db *DB
}

// NewMembershipStore builds a MembershipStore.
func NewMembershipStore(db *DB) *MembershipStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &MembershipStore{db: db}
}

func (s *MembershipStore) ActiveMembership(ctx context.Context, userID string, tenantID uuid.UUID) (security.Membership, bool, error) {
	var (
		m     security.Membership
		found bool
	)
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+membershipColumns+` FROM user_tenants
            WHERE user_id = $1 AND tenant_id = $2 AND is_active`, userID, tenantID)
		var err error
		m, err = scanMembership(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return security.Membership{}, false, fmt.Errorf("active membership: %w", err)
	}
	return m, found, nil
}

func (s *MembershipStore) ActiveMemberships(ctx context.Context, userID string) ([]security.Membership, error) {
	var out []security.Membership
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+membershipColumns+` FROM user_tenants
            WHERE user_id = $1 AND is_active ORDER BY created_at`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMembership(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("active memberships: %w", err)
	}
	return out, nil
}

func scanMembership(row pgx.Row) (security.Membership, error) {
	var (
		m    security.Membership
		role string
	)
	if err := row.Scan(&m.UserID, &m.TenantID, &role, &m.Active, &m.Metadata, &m.CreatedAt); err != nil {
		return security.Membership{}, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return security.Membership{}, fmt.Errorf("membership %s/%s: %w", m.UserID, m.TenantID, err)
	}
	m.Role = parsed
	return m, nil
}

var _ security.MembershipReader = (*MembershipStore)(nil)
