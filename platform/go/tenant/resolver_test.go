package tenant_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant/cache"
)

type fakeStore struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]tenant.Tenant
	byIDHits atomic.Int32
	hostHits atomic.Int32
	err      error
}

func newFakeStore(ts ...tenant.Tenant) *fakeStore {
	s := &fakeStore{tenants: make(map[uuid.UUID]tenant.Tenant)}
	for _, t := range ts {
		s.tenants[t.ID] = t
	}
	return s
}

func (s *fakeStore) put(t tenant.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *fakeStore) ByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	s.byIDHits.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tenant.Tenant{}, s.err
	}
	t, ok := s.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *fakeStore) BySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	s.hostHits.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return t.Clone(), nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (s *fakeStore) ByDomain(ctx context.Context, domain string) (tenant.Tenant, error) {
	s.hostHits.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.CustomDomain != nil && *t.CustomDomain == domain {
			return t.Clone(), nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (s *fakeStore) List(ctx context.Context) ([]tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *fakeStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tenant.Tenant
	for _, id := range ids {
		if t, ok := s.tenants[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

type fakeMemberships struct {
	ms []security.Membership
}

func (f fakeMemberships) ActiveMembership(ctx context.Context, userID string, tenantID uuid.UUID) (security.Membership, bool, error) {
	for _, m := range f.ms {
		if m.UserID == userID && m.TenantID == tenantID && m.Active {
			return m, true, nil
		}
	}
	return security.Membership{}, false, nil
}

func (f fakeMemberships) ActiveMemberships(ctx context.Context, userID string) ([]security.Membership, error) {
	var out []security.Membership
	for _, m := range f.ms {
		if m.UserID == userID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeAdmins map[string]auth.Role

func (f fakeAdmins) AdminRole(ctx context.Context, userID string) (auth.Role, bool, error) {
	role, ok := f[userID]
	return role, ok, nil
}

type fixture struct {
	store    *fakeStore
	sink     *security.MemorySink
	clock    *clock.Mock
	cache    *cache.Memory
	resolver *tenant.Resolver
}

func newFixture(t *testing.T, members []security.Membership, admins fakeAdmins, tenants ...tenant.Tenant) *fixture {
	t.Helper()

	f := &fixture{
		store: newFakeStore(tenants...),
		sink:  security.NewMemorySink(),
		clock: clock.NewMock(),
	}
	f.cache = cache.NewMemory(f.clock, 0)
	memberships := fakeMemberships{ms: members}
	validator := security.NewValidator(security.Config{
		Memberships: memberships,
		Admins:      admins,
		Sink:        f.sink,
		Clock:       f.clock,
	})
	f.resolver = tenant.NewResolver(tenant.ResolverConfig{
		Store:       f.store,
		Validator:   validator,
		Memberships: memberships,
		Cache:       f.cache,
		BaseDomain:  "palmyra-agri.com",
	})
	t.Cleanup(f.resolver.Close)
	return f
}

func asUser(id string) context.Context {
	return auth.WithUser(context.Background(), &auth.UserCredentials{Id: id})
}

func sampleTenant(name, slug string) tenant.Tenant {
	return tenant.Tenant{ID: uuid.New(), Name: name, Slug: slug, Status: tenant.StatusActive}
}

func TestResolveMarketingHasNoTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res, err := f.resolver.Resolve(asUser("u"), tenant.Lookup{Host: "www.palmyra-agri.com"})
	require.ErrorIs(t, err, tenant.ErrNoTenantApplicable)
	require.Equal(t, tenant.PortalMarketing, res.Portal.Kind)
	require.Nil(t, res.Tenant)
}

func TestResolveBySubdomainAppliesDefaults(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, []security.Membership{{UserID: "u", TenantID: gv.ID, Role: auth.RoleTenantUser, Active: true}}, nil, gv)

	res, err := f.resolver.Resolve(asUser("u"), tenant.Lookup{Host: "green-valley.palmyra-agri.com"})
	require.NoError(t, err)
	require.Equal(t, gv.ID, res.Tenant.ID)
	require.False(t, res.FromCache)
	require.Equal(t, tenant.DefaultBranding(), res.Tenant.Branding)
	require.False(t, res.Tenant.Features.Enabled(tenant.FeatureAnalytics))

	// Second lookup by id hits the same canonical entry.
	res, err = f.resolver.Resolve(asUser("u"), tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, 1, f.cache.Len())

	f.resolver.Wait()
}

func TestResolveDeniesNonMemberEvenFromCache(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, []security.Membership{{UserID: "member", TenantID: gv.ID, Active: true}}, nil, gv)

	_, err := f.resolver.Resolve(asUser("member"), tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)

	_, err = f.resolver.Resolve(asUser("outsider"), tenant.Lookup{TenantID: &gv.ID})
	require.ErrorIs(t, err, security.ErrAccessDenied)

	var denied *security.AccessDeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, security.ReasonNotMember, denied.Reason)
	require.Len(t, f.sink.OfType(security.EventTenantAccessDenied), 1)

	f.resolver.Wait()
}

func TestResolveUnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin})
	_, err := f.resolver.Resolve(asUser("root"), tenant.Lookup{Host: "ghost.palmyra-agri.com"})
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestResolveByCustomDomain(t *testing.T) {
	t.Parallel()

	domain := "farms.example.org"
	gv := sampleTenant("Green Valley", "green-valley")
	gv.CustomDomain = &domain
	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin}, gv)

	res, err := f.resolver.Resolve(asUser("root"), tenant.Lookup{Host: "Farms.Example.org"})
	require.NoError(t, err)
	require.Equal(t, gv.ID, res.Tenant.ID)
}

func TestCacheTTLTriggersFreshResolution(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, []security.Membership{{UserID: "u", TenantID: gv.ID, Active: true}}, nil, gv)
	ctx := asUser("u")

	_, err := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.store.byIDHits.Load())

	f.clock.Add(4*time.Minute + 59*time.Second)
	res, err := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	f.resolver.Wait()

	// The hit above refreshed the entry in the background.
	require.Equal(t, int32(2), f.store.byIDHits.Load())

	f.clock.Add(5*time.Minute + 2*time.Second)
	res, err = f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, int32(3), f.store.byIDHits.Load())
}

func TestBackgroundRefreshPicksUpChanges(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin}, gv)
	ctx := asUser("root")

	_, err := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)

	renamed := gv
	renamed.Name = "Green Valley Co-op"
	f.store.put(renamed)

	res, err := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.Equal(t, "Green Valley", res.Tenant.Name, "stale entry is served while refreshing")
	f.resolver.Wait()

	res, err = f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	require.NoError(t, err)
	require.Equal(t, "Green Valley Co-op", res.Tenant.Name)
	f.resolver.Wait()
}

func TestListForUser(t *testing.T) {
	t.Parallel()

	b := sampleTenant("Bravo Farms", "bravo")
	a := sampleTenant("Alpha Agro", "alpha")
	c := sampleTenant("Charlie Co", "charlie")
	f := newFixture(t, []security.Membership{
		{UserID: "u", TenantID: b.ID, Active: true},
		{UserID: "u", TenantID: a.ID, Active: true},
	}, fakeAdmins{"root": auth.RoleSuperAdmin}, a, b, c)

	list, err := f.resolver.ListForUser(asUser("u"))
	require.NoError(t, err)
	require.Len(t, list.Tenants, 2)
	require.Equal(t, "Alpha Agro", list.Tenants[0].Name)
	require.Equal(t, a.ID, list.Default.ID)

	all, err := f.resolver.ListForUser(asUser("root"))
	require.NoError(t, err)
	require.Len(t, all.Tenants, 3)

	_, err = f.resolver.ListForUser(context.Background())
	require.ErrorIs(t, err, tenant.ErrUnauthenticated)
}

func TestSwitchPersistsSelectionAndEmitsEvents(t *testing.T) {
	t.Parallel()

	a := sampleTenant("Alpha Agro", "alpha")
	b := sampleTenant("Bravo Farms", "bravo")
	other := sampleTenant("Other", "other")
	f := newFixture(t, []security.Membership{
		{UserID: "u", TenantID: a.ID, Active: true},
		{UserID: "u", TenantID: b.ID, Active: true},
	}, nil, a, b, other)
	ctx := asUser("u")

	_, err := f.resolver.Switch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, f.sink.OfType(security.EventTenantSwitchSuccess), 1)

	list, err := f.resolver.ListForUser(ctx)
	require.NoError(t, err)
	require.Equal(t, b.ID, list.Default.ID)

	_, err = f.resolver.Switch(ctx, other.ID)
	require.ErrorIs(t, err, security.ErrAccessDenied)
	require.Len(t, f.sink.OfType(security.EventTenantSwitchDenied), 1)

	list, err = f.resolver.ListForUser(ctx)
	require.NoError(t, err)
	require.Equal(t, b.ID, list.Default.ID, "denied switch keeps previous selection")

	// The admin portal resolves to the persisted selection.
	res, err := f.resolver.Resolve(ctx, tenant.Lookup{Host: "admin.palmyra-agri.com"})
	require.NoError(t, err)
	require.Equal(t, tenant.PortalAdmin, res.Portal.Kind)
	require.Equal(t, b.ID, res.Tenant.ID)
	require.Len(t, res.Tenants, 2)
}

func TestSwitchToInactiveTenant(t *testing.T) {
	t.Parallel()

	suspended := sampleTenant("Dormant", "dormant")
	suspended.Status = tenant.StatusSuspended
	f := newFixture(t, []security.Membership{{UserID: "u", TenantID: suspended.ID, Active: true}},
		fakeAdmins{"root": auth.RoleSuperAdmin}, suspended)

	_, err := f.resolver.Switch(asUser("u"), suspended.ID)
	var denied *security.AccessDeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, security.ReasonTenantInactive, denied.Reason)

	got, err := f.resolver.Switch(asUser("root"), suspended.ID)
	require.NoError(t, err)
	require.False(t, got.Accessible())
}

func TestInvalidateEvictsEntry(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin}, gv)
	ctx := asUser("root")

	_, err := f.resolver.Resolve(ctx, tenant.Lookup{Host: "green-valley.palmyra-agri.com"})
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	f.resolver.Invalidate(ctx, gv.ID)
	require.Zero(t, f.cache.Len())

	res, err := f.resolver.Resolve(ctx, tenant.Lookup{Host: "green-valley.palmyra-agri.com"})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, int32(2), f.store.hostHits.Load())
}

func TestResolveStoreErrorIsNotNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin})
	f.store.err = errors.New("connection reset")

	id := uuid.New()
	_, err := f.resolver.Resolve(asUser("root"), tenant.Lookup{TenantID: &id})
	require.Error(t, err)
	require.NotErrorIs(t, err, tenant.ErrNotFound)
}

func TestOutsiderCannotTellUnknownTenantsApart(t *testing.T) {
	t.Parallel()

	gv := sampleTenant("Green Valley", "green-valley")
	f := newFixture(t, []security.Membership{{UserID: "member", TenantID: gv.ID, Active: true}}, nil, gv)
	ctx := asUser("outsider")
	ghost := uuid.New()

	_, existingErr := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &gv.ID})
	_, ghostErr := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &ghost})

	for _, err := range []error{existingErr, ghostErr} {
		require.ErrorIs(t, err, security.ErrAccessDenied)
		require.NotErrorIs(t, err, tenant.ErrNotFound)
	}
	require.Len(t, f.sink.OfType(security.EventTenantAccessDenied), 2)
	require.Zero(t, f.store.byIDHits.Load(), "store is not read before access is granted")

	_, err := f.resolver.Switch(ctx, ghost)
	require.ErrorIs(t, err, security.ErrAccessDenied)
	require.Len(t, f.sink.OfType(security.EventTenantAccessDenied), 3)
	require.Len(t, f.sink.OfType(security.EventTenantSwitchDenied), 1)
}

func TestSuperAdminStillSeesUnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin})
	ghost := uuid.New()

	_, err := f.resolver.Resolve(asUser("root"), tenant.Lookup{TenantID: &ghost})
	require.ErrorIs(t, err, tenant.ErrNotFound)

	_, err = f.resolver.Switch(asUser("root"), ghost)
	require.ErrorIs(t, err, tenant.ErrNotFound)
	require.Len(t, f.sink.OfType(security.EventTenantSwitchDenied), 1)
}

func TestInvalidateAllDropsEveryCachedTenant(t *testing.T) {
	t.Parallel()

	a := sampleTenant("Alpha Agro", "alpha")
	b := sampleTenant("Bravo Farms", "bravo")
	f := newFixture(t, nil, fakeAdmins{"root": auth.RoleSuperAdmin}, a, b)
	ctx := asUser("root")

	_, err := f.resolver.Resolve(ctx, tenant.Lookup{TenantID: &a.ID})
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, tenant.Lookup{Host: "bravo.palmyra-agri.com"})
	require.NoError(t, err)
	require.Equal(t, 2, f.cache.Len())

	f.resolver.InvalidateAll(ctx)
	require.Zero(t, f.cache.Len())

	res, err := f.resolver.Resolve(ctx, tenant.Lookup{Host: "bravo.palmyra-agri.com"})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, int32(2), f.store.hostHits.Load())
}
