package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

const defaultRefreshTimeout = 10 * time.Second

// AccessValidator is the part of the security validator the resolver relies on.
type AccessValidator interface {
	ValidateTenantAccess(ctx context.Context, tenantID uuid.UUID, userID *string) security.TenantAccessResult
	IsSuperAdmin(ctx context.Context, userID string) bool
	RecordEvent(ctx context.Context, event security.Event)
}

// ResolverConfig wires a Resolver. Store, Validator and Memberships are required.
type ResolverConfig struct {
	Store       Store
	Validator   AccessValidator
	Memberships security.MembershipReader
	// Cache is optional; nil disables caching.
	Cache Cache
	// Selections defaults to an in-memory store.
	Selections SelectionStore
	Session    auth.SessionProvider
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	BaseDomain string
	// RefreshTimeout bounds a background refresh.
	RefreshTimeout time.Duration
}

// Lookup is the input of Resolve. An explicit TenantID wins over Host.
type Lookup struct {
	TenantID *uuid.UUID
	Host     string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Portal Portal
	Tenant *Tenant
	// Tenants is populated for portals that pick a tenant from the user's list.
	Tenants   []Tenant
	FromCache bool
}

// TenantList is the set of tenants a user can work in plus the default selection.
type TenantList struct {
	Tenants []Tenant
	Default *Tenant
}

// Resolver maps request context onto an authorized tenant snapshot.
type Resolver struct {
	store       Store
	validator   AccessValidator
	memberships security.MembershipReader
	cache       Cache
	selections  SelectionStore
	session     auth.SessionProvider
	logger      *zap.Logger
	metrics     *metrics.Metrics
	baseDomain  string
	timeout     time.Duration

	group  singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	hostIndex   map[string]uuid.UUID
	generations map[uuid.UUID]uint64
	cached      map[uuid.UUID]struct{}
}

// NewResolver builds a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Store == nil {
		panic("tenant resolver: store is required")
	}
	if cfg.Validator == nil {
		panic("tenant resolver: validator is required")
	}
	if cfg.Memberships == nil {
		panic("tenant resolver: membership reader is required")
	}

	r := &Resolver{
		store:       cfg.Store,
		validator:   cfg.Validator,
		memberships: cfg.Memberships,
		cache:       cfg.Cache,
		selections:  cfg.Selections,
		session:     cfg.Session,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		baseDomain:  cfg.BaseDomain,
		timeout:     cfg.RefreshTimeout,
		hostIndex:   make(map[string]uuid.UUID),
		generations: make(map[uuid.UUID]uint64),
		cached:      make(map[uuid.UUID]struct{}),
	}
	if r.selections == nil {
		r.selections = NewMemorySelections()
	}
	if r.session == nil {
		r.session = auth.RequestSession{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.timeout <= 0 {
		r.timeout = defaultRefreshTimeout
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Resolve produces the tenant for lookup. The marketing portal yields
// ErrNoTenantApplicable. Tenant subdomains and custom domains resolve by
// host. The admin, partner and manage portals resolve to the user's default
// tenant. Every returned tenant has passed ValidateTenantAccess.
func (r *Resolver) Resolve(ctx context.Context, lookup Lookup) (Resolution, error) {
	portal := ClassifyHost(lookup.Host, r.baseDomain)
	res := Resolution{Portal: portal}

	if lookup.TenantID != nil {
		// Access is checked on the id alone so unknown and foreign tenants
		// fail the same way for outsiders.
		if err := r.authorize(ctx, *lookup.TenantID); err != nil {
			return res, err
		}
		t, fromCache, err := r.load(ctx, *lookup.TenantID)
		if err != nil {
			return res, err
		}
		res.Tenant, res.FromCache = &t, fromCache
		return res, nil
	}

	switch portal.Kind {
	case PortalMarketing:
		return res, ErrNoTenantApplicable
	case PortalTenant:
		t, fromCache, err := r.loadByHost(ctx, portal)
		if err != nil {
			return res, err
		}
		if err := r.authorize(ctx, t.ID); err != nil {
			return res, err
		}
		res.Tenant, res.FromCache = &t, fromCache
		return res, nil
	default:
		list, err := r.ListForUser(ctx)
		if err != nil {
			return res, err
		}
		res.Tenants = list.Tenants
		if list.Default == nil {
			return res, ErrNotFound
		}
		res.Tenant = list.Default
		return res, nil
	}
}

// ListForUser returns the tenants the session user can work in, sorted by
// name, with the persisted selection as default when it is still listed.
func (r *Resolver) ListForUser(ctx context.Context) (TenantList, error) {
	uid, err := r.currentUser(ctx)
	if err != nil {
		return TenantList{}, err
	}

	var tenants []Tenant
	if r.validator.IsSuperAdmin(ctx, uid) {
		tenants, err = r.store.List(ctx)
		if err != nil {
			return TenantList{}, fmt.Errorf("list tenants: %w", err)
		}
	} else {
		memberships, err := r.memberships.ActiveMemberships(ctx, uid)
		if err != nil {
			return TenantList{}, fmt.Errorf("list memberships: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(memberships))
		for _, m := range memberships {
			if m.Active {
				ids = append(ids, m.TenantID)
			}
		}
		candidates, err := r.store.ListByIDs(ctx, ids)
		if err != nil {
			return TenantList{}, fmt.Errorf("list tenants: %w", err)
		}
		for _, t := range candidates {
			if r.validator.ValidateTenantAccess(ctx, t.ID, &uid).IsValid {
				tenants = append(tenants, t)
			}
		}
	}

	for i := range tenants {
		tenants[i].ApplyDefaults()
	}
	sort.SliceStable(tenants, func(i, j int) bool {
		if tenants[i].Name != tenants[j].Name {
			return tenants[i].Name < tenants[j].Name
		}
		return tenants[i].ID.String() < tenants[j].ID.String()
	})

	list := TenantList{Tenants: tenants}
	if len(tenants) == 0 {
		return list, nil
	}

	def := &list.Tenants[0]
	selected, ok, err := r.selections.Selected(ctx, uid)
	if err != nil {
		r.logger.Warn("load tenant selection", zap.String("user_id", uid), zap.Error(err))
	} else if ok {
		for i := range list.Tenants {
			if list.Tenants[i].ID == selected {
				def = &list.Tenants[i]
				break
			}
		}
	}
	list.Default = def
	return list, nil
}

// Switch makes tenantID the session user's current tenant. Access is checked
// before the tenant is read; the cached entry is then evicted and re-read. A denied switch records
// tenant_switch_denied and keeps the previous selection.
func (r *Resolver) Switch(ctx context.Context, tenantID uuid.UUID) (Tenant, error) {
	uid, err := r.currentUser(ctx)
	if err != nil {
		return Tenant{}, err
	}

	previous, hadPrevious, err := r.selections.Selected(ctx, uid)
	if err != nil {
		r.logger.Warn("load tenant selection", zap.String("user_id", uid), zap.Error(err))
	}

	access := r.validator.ValidateTenantAccess(ctx, tenantID, &uid)
	if !access.IsValid {
		r.recordSwitch(ctx, security.EventTenantSwitchDenied, uid, tenantID, map[string]any{"reason": access.Reason})
		return Tenant{}, access.Err()
	}

	r.Invalidate(ctx, tenantID)

	t, err := r.fetch(ctx, tenantID)
	if err != nil {
		reason := "lookup_failed"
		if errors.Is(err, ErrNotFound) {
			reason = "not_found"
		}
		r.recordSwitch(ctx, security.EventTenantSwitchDenied, uid, tenantID, map[string]any{"reason": reason})
		return Tenant{}, err
	}

	if !t.Accessible() && access.Role != auth.RoleSuperAdmin {
		r.recordSwitch(ctx, security.EventTenantSwitchDenied, uid, tenantID, map[string]any{
			"reason": security.ReasonTenantInactive,
			"status": string(t.Status),
		})
		return Tenant{}, &security.AccessDeniedError{TenantID: &tenantID, UserID: uid, Reason: security.ReasonTenantInactive}
	}

	if err := r.selections.Select(ctx, uid, tenantID); err != nil {
		r.recordSwitch(ctx, security.EventTenantSwitchDenied, uid, tenantID, map[string]any{"reason": "selection_not_saved"})
		return Tenant{}, fmt.Errorf("persist tenant selection: %w", err)
	}

	r.remember(ctx, t)

	metadata := map[string]any{"tenant_slug": t.Slug}
	if hadPrevious {
		metadata["previous_tenant_id"] = previous.String()
	}
	r.recordSwitch(ctx, security.EventTenantSwitchSuccess, uid, tenantID, metadata)
	return t, nil
}

// Invalidate evicts the cached entry of tenantID and any host mapped to it.
// Refreshes started before the call are discarded.
func (r *Resolver) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	r.mu.Lock()
	r.generations[tenantID]++
	delete(r.cached, tenantID)
	for host, id := range r.hostIndex {
		if id == tenantID {
			delete(r.hostIndex, host)
		}
	}
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.Invalidate(ctx, CacheKey(tenantID))
	}
}

// InvalidateAll evicts every tenant this resolver has cached. It runs when the
// session the resolver works under changes.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.cached))
	for id := range r.cached {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Invalidate(ctx, id)
	}
}

// Wait blocks until in-flight background refreshes finish.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close stops scheduling refreshes, cancels in-flight ones and waits for them.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Resolver) currentUser(ctx context.Context) (string, error) {
	creds, err := r.session.CurrentUser(ctx)
	if err != nil || creds == nil || creds.Id == "" {
		return "", ErrUnauthenticated
	}
	return creds.Id, nil
}

func (r *Resolver) authorize(ctx context.Context, id uuid.UUID) error {
	return r.validator.ValidateTenantAccess(ctx, id, nil).Err()
}

// load returns the tenant by id, serving from cache when possible.
func (r *Resolver) load(ctx context.Context, id uuid.UUID) (Tenant, bool, error) {
	if r.cache != nil {
		if t, ok := r.cache.Get(ctx, CacheKey(id)); ok {
			r.metrics.ObserveCacheLookup(true)
			r.refreshAsync(id)
			return t, true, nil
		}
		r.metrics.ObserveCacheLookup(false)
	}

	gen := r.generation(id)
	t, err := r.fetch(ctx, id)
	if err != nil {
		return Tenant{}, false, err
	}
	r.cacheIfCurrent(ctx, t, gen)
	return t, false, nil
}

func (r *Resolver) loadByHost(ctx context.Context, portal Portal) (Tenant, bool, error) {
	host := portal.Slug
	if portal.Domain != "" {
		host = portal.Domain
	}

	r.mu.Lock()
	id, indexed := r.hostIndex[host]
	r.mu.Unlock()

	if indexed {
		t, fromCache, err := r.load(ctx, id)
		if err == nil && matchesPortal(t, portal) {
			return t, fromCache, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Tenant{}, false, err
		}
		r.mu.Lock()
		delete(r.hostIndex, host)
		r.mu.Unlock()
	}

	var (
		t   Tenant
		err error
	)
	if portal.Domain != "" {
		t, err = r.store.ByDomain(ctx, portal.Domain)
	} else {
		t, err = r.store.BySlug(ctx, portal.Slug)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, false, err
		}
		return Tenant{}, false, fmt.Errorf("resolve tenant %q: %w", host, err)
	}
	t.ApplyDefaults()

	r.mu.Lock()
	r.hostIndex[host] = t.ID
	gen := r.generations[t.ID]
	r.mu.Unlock()

	r.cacheIfCurrent(ctx, t, gen)
	return t, false, nil
}

func matchesPortal(t Tenant, portal Portal) bool {
	if portal.Domain != "" {
		return t.CustomDomain != nil && *t.CustomDomain == portal.Domain
	}
	return t.Slug == portal.Slug
}

func (r *Resolver) fetch(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := r.store.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, err
		}
		return Tenant{}, fmt.Errorf("resolve tenant %s: %w", id, err)
	}
	t.ApplyDefaults()
	return t, nil
}

func (r *Resolver) generation(id uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[id]
}

// cacheIfCurrent writes t unless the tenant was invalidated after gen was read.
func (r *Resolver) cacheIfCurrent(ctx context.Context, t Tenant, gen uint64) {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	current := r.generations[t.ID]
	r.mu.Unlock()
	if current != gen {
		return
	}
	r.remember(ctx, t)
}

func (r *Resolver) remember(ctx context.Context, t Tenant) {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	r.cached[t.ID] = struct{}{}
	r.mu.Unlock()
	r.cache.Set(ctx, CacheKey(t.ID), t)
}

// refreshAsync re-reads the tenant in the background so the next lookup is
// fresh. Concurrent refreshes of one tenant are coalesced.
func (r *Resolver) refreshAsync(id uuid.UUID) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	gen := r.generations[id]
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		_, err, _ := r.group.Do(id.String(), func() (any, error) {
			ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
			defer cancel()

			t, err := r.fetch(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					r.Invalidate(ctx, id)
				}
				return nil, err
			}
			r.cacheIfCurrent(ctx, t, gen)
			return nil, nil
		})

		r.metrics.ObserveCacheRefresh(err)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Debug("background tenant refresh failed", zap.String("tenant_id", id.String()), zap.Error(err))
		}
	}()
}

func (r *Resolver) recordSwitch(ctx context.Context, eventType security.EventType, uid string, tenantID uuid.UUID, metadata map[string]any) {
	r.validator.RecordEvent(ctx, security.Event{
		Type:     eventType,
		UserID:   &uid,
		TenantID: &tenantID,
		Metadata: metadata,
	})
}
