package security

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkRecentNewestFirst(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	user := "user-1"
	now := time.Now()

	require.NoError(t, sink.Record(ctx, Event{Type: EventDataAccess, TenantID: &tenantA, UserID: &user, CreatedAt: now}))
	require.NoError(t, sink.Record(ctx, Event{Type: EventDataAccessDenied, TenantID: &tenantA, CreatedAt: now}))
	require.NoError(t, sink.Record(ctx, Event{Type: EventDataAccess, TenantID: &tenantB, CreatedAt: now}))
	require.NoError(t, sink.Record(ctx, Event{Type: EventDataAccess, TenantID: &tenantA, CreatedAt: now.Add(time.Second)}))

	got, err := sink.Recent(ctx, EventFilter{TenantID: &tenantA})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[0].CreatedAt.After(got[2].CreatedAt))

	typ := EventDataAccess
	got, err = sink.Recent(ctx, EventFilter{TenantID: &tenantA, Type: &typ, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = sink.Recent(ctx, EventFilter{UserID: &user})
	require.NoError(t, err)
	require.Len(t, got, 1)

	n, err := sink.CountSince(ctx, user, EventDataAccess, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEventFilterPageSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultEventPageSize, EventFilter{}.PageSize())
	require.Equal(t, DefaultEventPageSize, EventFilter{Limit: 10_000}.PageSize())
	require.Equal(t, 5, EventFilter{Limit: 5}.PageSize())
}
