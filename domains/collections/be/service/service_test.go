package service

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/orchestrator"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type allowAll struct{}

func (allowAll) ValidateTenantAccess(ctx context.Context, tenantID uuid.UUID, userID *string) security.TenantAccessResult {
	return security.TenantAccessResult{IsValid: true, TenantID: tenantID, UserID: "user-1"}
}

func (allowAll) RecordEvent(ctx context.Context, event security.Event) {}

type loaderFunc func(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error)

func (f loaderFunc) Resolve(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error) {
	return f(ctx, lookup)
}

type superAdmins map[string]bool

func (s superAdmins) IsSuperAdmin(ctx context.Context, userID string) bool { return s[userID] }

type invokerFunc func(ctx context.Context, name string, tenantID *uuid.UUID, payload map[string]any) orchestrator.Result

func (f invokerFunc) Invoke(ctx context.Context, name string, tenantID *uuid.UUID, payload map[string]any) orchestrator.Result {
	return f(ctx, name, tenantID, payload)
}

type fixture struct {
	svc    *Service
	store  *scopeddb.MemoryStore
	tenant *tenant.Tenant
}

func newFixture(t *testing.T, mutate func(*tenant.Tenant), functions Invoker) *fixture {
	t.Helper()

	tn := &tenant.Tenant{ID: uuid.New(), Name: "Green Valley", Slug: "green-valley", Status: tenant.StatusActive}
	tn.ApplyDefaults()
	tn.Features[tenant.FeatureFarmerManagement] = true
	tn.Features[tenant.FeatureProductCatalog] = true
	if mutate != nil {
		mutate(tn)
	}

	schemas := scopeddb.NewSchemas()
	require.NoError(t, RegisterSchemas(schemas))

	store := scopeddb.NewMemoryStore(Names()...)
	gw := scopeddb.NewGateway(scopeddb.Config{Store: store, Validator: allowAll{}, Schemas: schemas})

	svc := New(Config{
		Gateway: gw,
		Tenants: loaderFunc(func(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error) {
			if lookup.TenantID == nil || *lookup.TenantID != tn.ID {
				return tenant.Resolution{}, tenant.ErrNotFound
			}
			snapshot := tn.Clone()
			return tenant.Resolution{Tenant: &snapshot}, nil
		}),
		Executor:  orchestrator.New(orchestrator.Config{Clock: clock.NewMock()}),
		Admins:    superAdmins{"root": true},
		Functions: functions,
	})
	return &fixture{svc: svc, store: store, tenant: tn}
}

func asUser(id string) context.Context {
	return platformauth.WithUser(context.Background(), &platformauth.UserCredentials{Id: id})
}

func TestCreateGetUpdateDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	ctx := asUser("user-1")

	created, err := f.svc.Create(ctx, f.tenant.ID, "farmers", scopeddb.Row{"name": "Asha", "village": "Kota"})
	require.NoError(t, err)
	id, ok := created["id"].(string)
	require.True(t, ok)
	require.Equal(t, f.tenant.ID.String(), created[scopeddb.TenantColumn])

	got, err := f.svc.Get(ctx, f.tenant.ID, "farmers", id)
	require.NoError(t, err)
	require.Equal(t, "Kota", got["village"])

	updated, err := f.svc.Update(ctx, f.tenant.ID, "farmers", id, scopeddb.Row{"village": "Bundi"})
	require.NoError(t, err)
	require.Equal(t, "Bundi", updated["village"])

	rows, err := f.svc.List(ctx, f.tenant.ID, "farmers", ListOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, f.svc.Delete(ctx, f.tenant.ID, "farmers", id))
	require.ErrorIs(t, f.svc.Delete(ctx, f.tenant.ID, "farmers", id), ErrNotFound)

	_, err = f.svc.Get(ctx, f.tenant.ID, "farmers", "not-a-uuid")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	_, err := f.svc.Create(asUser("user-1"), f.tenant.ID, "products", scopeddb.Row{"price_cents": -5})

	var verr *scopeddb.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Empty(t, f.store.All("products"))
}

func TestFeatureGateAndUnknownCollection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	ctx := asUser("user-1")

	_, err := f.svc.List(ctx, f.tenant.ID, "dealers", ListOptions{})
	require.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = f.svc.List(ctx, f.tenant.ID, "invoices", ListOptions{})
	require.ErrorIs(t, err, ErrUnknownCollection)

	_, err = f.svc.List(ctx, uuid.New(), "farmers", ListOptions{})
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestUsageLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(tn *tenant.Tenant) {
		tn.Limits.Farmers = tenant.Limit{Max: 2}
	}, nil)
	ctx := asUser("user-1")

	for _, name := range []string{"A", "B"} {
		_, err := f.svc.Create(ctx, f.tenant.ID, "farmers", scopeddb.Row{"name": name})
		require.NoError(t, err)
	}

	_, err := f.svc.Create(ctx, f.tenant.ID, "farmers", scopeddb.Row{"name": "C"})
	require.ErrorIs(t, err, ErrLimitExceeded)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, int64(2), limitErr.Limit.Current)

	_, err = f.svc.Create(asUser("root"), f.tenant.ID, "farmers", scopeddb.Row{"name": "C"})
	require.NoError(t, err)
	require.Len(t, f.store.All("farmers"), 3)
}

func TestWritesRejectedForInactiveTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(tn *tenant.Tenant) { tn.Status = tenant.StatusSuspended }, nil)
	ctx := asUser("user-1")

	_, err := f.svc.List(ctx, f.tenant.ID, "farmers", ListOptions{})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.tenant.ID, "farmers", scopeddb.Row{"name": "A"})
	var denied *security.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, security.ReasonTenantInactive, denied.Reason)
}

func TestTenantRateLimitApplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(tn *tenant.Tenant) { tn.Security.RateLimitPerMinute = 1 }, nil)
	ctx := asUser("user-1")

	_, err := f.svc.List(ctx, f.tenant.ID, "farmers", ListOptions{})
	require.NoError(t, err)

	_, err = f.svc.List(ctx, f.tenant.ID, "farmers", ListOptions{})
	var limitErr *orchestrator.RateLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 1, limitErr.Limit)
	require.Positive(t, limitErr.RetryAfter)
}

func TestInvokeFunction(t *testing.T) {
	t.Parallel()

	var gotTenant *uuid.UUID
	invoker := invokerFunc(func(ctx context.Context, name string, tenantID *uuid.UUID, payload map[string]any) orchestrator.Result {
		gotTenant = tenantID
		if name == "broken" {
			return orchestrator.Result{Error: "upstream returned 500", Err: &orchestrator.StatusError{StatusCode: 500}, Kind: orchestrator.KindFailed}
		}
		return orchestrator.Result{Success: true, Data: map[string]any{"ok": true}}
	})
	f := newFixture(t, nil, invoker)
	ctx := asUser("user-1")

	data, err := f.svc.Invoke(ctx, f.tenant.ID, "score-farmers", map[string]any{"batch": 1})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, data)
	require.Equal(t, f.tenant.ID, *gotTenant)

	_, err = f.svc.Invoke(ctx, f.tenant.ID, "broken", nil)
	var status *orchestrator.StatusError
	require.ErrorAs(t, err, &status)

	_, err = newFixture(t, nil, nil).svc.Invoke(ctx, f.tenant.ID, "any", nil)
	require.True(t, errors.Is(err, ErrFunctionsDisabled))
}
