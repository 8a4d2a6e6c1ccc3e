package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// AdminGrant is a row of the platform admin registry.
type AdminGrant struct {
	UserID    string
	Role      auth.Role
	Active    bool
	CreatedAt time.Time
}

// AdminStore is the authoritative registry of global admin roles.
type AdminStore struct {
	db *DB
}

// NewAdminStore builds an AdminStore.
func NewAdminStore(db *DB) *AdminStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &AdminStore{db: db}
}

// AdminRole implements security.AdminRoleReader.
func (s *AdminStore) AdminRole(ctx context.Context, userID string) (auth.Role, bool, error) {
	var (
		role  string
		found bool
	)
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT role FROM platform_admins WHERE user_id = $1 AND is_active`, userID).Scan(&role)
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
		return "", false, fmt.Errorf("admin role: %w", err)
	}
	if !found {
		return "", false, nil
	}
	parsed, err := auth.ParseRole(role)
	if err != nil || !parsed.IsAdmin() {
		return "", false, fmt.Errorf("admin role of %s: invalid role %q", userID, role)
	}
	return parsed, true, nil
}

// Grant sets the admin role of userID, reactivating a revoked grant.
func (s *AdminStore) Grant(ctx context.Context, userID string, role auth.Role) (AdminGrant, error) {
	if !role.IsAdmin() {
		return AdminGrant{}, fmt.Errorf("role %q is not an admin role", role)
	}
	var g AdminGrant
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var r string
		err := tx.QueryRow(ctx, `
            INSERT INTO platform_admins (user_id, role, is_active)
            VALUES ($1, $2, TRUE)
            ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, is_active = TRUE
            RETURNING user_id, role, is_active, created_at`, userID, string(role)).Scan(&g.UserID, &r, &g.Active, &g.CreatedAt)
		g.Role = auth.Role(r)
		return err
	})
	if err != nil {
		return AdminGrant{}, fmt.Errorf("grant admin role: %w", err)
	}
	return g, nil
}

// Revoke deactivates the grant of userID. It reports whether a grant existed.
func (s *AdminStore) Revoke(ctx context.Context, userID string) (bool, error) {
	var revoked bool
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE platform_admins SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
		revoked = tag.RowsAffected() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("revoke admin role: %w", err)
	}
	return revoked, nil
}

var _ security.AdminRoleReader = (*AdminStore)(nil)
