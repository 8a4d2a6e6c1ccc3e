package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

type memoryRepo struct {
	mu      sync.Mutex
	members []Member
	active  map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{active: map[string]bool{}}
}

func (r *memoryRepo) key(tenantID uuid.UUID, userID string) string {
	return tenantID.String() + "/" + userID
}

func (r *memoryRepo) ListActive(ctx context.Context, tenantID uuid.UUID) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Member
	for _, m := range r.members {
		if m.TenantID == tenantID && r.active[r.key(tenantID, m.UserID)] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountActive(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[r.key(tenantID, userID)] {
		return 1, nil
	}
	return 0, nil
}

func (r *memoryRepo) Insert(ctx context.Context, tenantID uuid.UUID, m Member) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uuid.NewString()
	r.members = append(r.members, m)
	r.active[r.key(tenantID, m.UserID)] = true
	return m, nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(tenantID, userID)
	if !r.active[k] {
		return 0, nil
	}
	r.active[k] = false
	return 1, nil
}

// rolesFunc grants the roles returned by fn.
type rolesFunc func(required platformauth.Role, tenantID *uuid.UUID) bool

func (f rolesFunc) ValidateUserRole(ctx context.Context, required platformauth.Role, tenantID *uuid.UUID) bool {
	return f(required, tenantID)
}

type eventLog struct {
	mu     sync.Mutex
	events []security.Event
}

func (l *eventLog) RecordEvent(ctx context.Context, event security.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func tenantAdminOf(id uuid.UUID) rolesFunc {
	return func(required platformauth.Role, tenantID *uuid.UUID) bool {
		return required == platformauth.RoleTenantAdmin && tenantID != nil && *tenantID == id
	}
}

func platformAdmin() rolesFunc {
	return func(required platformauth.Role, tenantID *uuid.UUID) bool {
		return required == platformauth.RolePlatformAdmin && tenantID == nil
	}
}

func userCtx() context.Context {
	return platformauth.WithUser(context.Background(), &platformauth.UserCredentials{Id: "admin-1"})
}

func TestAddMember(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	repo := newMemoryRepo()
	log := &eventLog{}
	svc := New(repo, tenantAdminOf(tenantID), log)

	m, err := svc.Add(userCtx(), tenantID, AddInput{UserID: " farmer-7 ", Role: "farmer"})
	require.NoError(t, err)
	require.Equal(t, "farmer-7", m.UserID)
	require.Equal(t, platformauth.RoleFarmer, m.Role)
	require.NotNil(t, m.Metadata)

	members, err := svc.List(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.Len(t, log.events, 1)
	require.Equal(t, security.EventTenantConfigMutation, log.events[0].Type)
	require.Equal(t, "member_added", log.events[0].Metadata["action"])
	require.Equal(t, "admin-1", *log.events[0].UserID)

	_, err = svc.Add(userCtx(), tenantID, AddInput{UserID: "farmer-7", Role: "dealer"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestAddMemberValidation(t *testing.T) {
	t.Parallel()

	svc := New(newMemoryRepo(), platformAdmin(), &eventLog{})

	_, err := svc.Add(userCtx(), uuid.New(), AddInput{Role: "wizard"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "userId")
	require.Contains(t, verr.Fields, "role")
}

func TestAddMemberPermissions(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	cases := []struct {
		name  string
		roles rolesFunc
		role  string
		err   error
	}{
		{name: "tenant admin adds user", roles: tenantAdminOf(tenantID), role: "tenant_user"},
		{name: "tenant admin cannot grant platform admin", roles: tenantAdminOf(tenantID), role: "platform_admin", err: ErrForbidden},
		{name: "platform admin grants platform admin", roles: platformAdmin(), role: "platform_admin"},
		{name: "admin of another tenant", roles: tenantAdminOf(uuid.New()), role: "farmer", err: ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := New(newMemoryRepo(), tc.roles, &eventLog{})
			_, err := svc.Add(userCtx(), tenantID, AddInput{UserID: "u-1", Role: tc.role})
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestRemoveMember(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	repo := newMemoryRepo()
	log := &eventLog{}
	svc := New(repo, tenantAdminOf(tenantID), log)

	_, err := svc.Add(userCtx(), tenantID, AddInput{UserID: "dealer-1", Role: "dealer"})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(userCtx(), tenantID, "dealer-1"))
	require.ErrorIs(t, svc.Remove(userCtx(), tenantID, "dealer-1"), ErrNotFound)

	members, err := svc.List(context.Background(), tenantID)
	require.NoError(t, err)
	require.Empty(t, members)
	require.Len(t, repo.members, 1)

	denied := New(repo, tenantAdminOf(uuid.New()), log)
	require.ErrorIs(t, denied.Remove(userCtx(), tenantID, "dealer-1"), ErrForbidden)
}
