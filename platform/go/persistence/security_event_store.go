package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// SecurityEventStore is the append-only security_events sink.
type SecurityEventStore struct {
	db *DB
}

// NewSecurityEventStore builds a SecurityEventStore.
func NewSecurityEventStore(db *DB) *SecurityEventStore {
	if db == nil {
		panic("persistence: db is required")
	}
	return &SecurityEventStore{db: db}
}

// Record implements security.Sink.
func (s *SecurityEventStore) Record(ctx context.Context, e security.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO security_events (event_id, event_type, user_id, tenant_id, metadata, ip_address, user_agent, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, string(e.Type), e.UserID, e.TenantID, metadata, e.IPAddress, e.UserAgent, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert security event: %w", err)
		}
		return nil
	})
}

// CountSince implements security.Sink.
func (s *SecurityEventStore) CountSince(ctx context.Context, userID string, eventType security.EventType, since time.Time) (int, error) {
	var n int
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
            SELECT COUNT(*) FROM security_events
            WHERE user_id = $1 AND event_type = $2 AND created_at >= $3`,
			userID, string(eventType), since,
		).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return n, nil
}

// Recent returns the newest events matching filter.
func (s *SecurityEventStore) Recent(ctx context.Context, filter security.EventFilter) ([]security.Event, error) {
	limit := filter.PageSize()

	var typ *string
	if filter.Type != nil {
		t := string(*filter.Type)
		typ = &t
	}

	var out []security.Event
	err := s.db.ReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT event_id, event_type, user_id, tenant_id, metadata, ip_address, user_agent, created_at
            FROM security_events
            WHERE ($1::uuid IS NULL OR tenant_id = $1)
              AND ($2::text IS NULL OR user_id = $2)
              AND ($3::text IS NULL OR event_type = $3)
            ORDER BY created_at DESC
            LIMIT $4`, filter.TenantID, filter.UserID, typ, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e   security.Event
				typ string
			)
			if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.TenantID, &e.Metadata, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
				return err
			}
			e.Type = security.EventType(typ)
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	return out, nil
}

var _ security.Sink = (*SecurityEventStore)(nil)
