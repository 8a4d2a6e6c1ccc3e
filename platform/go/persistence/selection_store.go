package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// SelectionStore persists the tenant each user last switched to.
type SelectionStore struct {
	db *DB
}

// NewSelectionStore builds a SelectionStore.
func NewSelectionStore(db *DB) *SelectionStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &SelectionStore{db: db}
}

func (s *SelectionStore) Selected(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	var (
		id    uuid.UUID
		found bool
	)
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT tenant_id FROM tenant_selections WHERE user_id = $1`, userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("read tenant selection: %w", err)
	}
	return id, found, nil
}

func (s *SelectionStore) Select(ctx context.Context, userID string, tenantID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO tenant_selections (user_id, tenant_id, selected_at)
            VALUES ($1, $2, NOW())
            ON CONFLICT (user_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, selected_at = NOW()`, userID, tenantID)
		return err
	})
	if err != nil {
		return fmt.Errorf("persist tenant selection: %w", err)
	}
	return nil
}

var _ tenant.SelectionStore = (*SelectionStore)(nil)
