package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type mockService struct {
	listFn        func(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	getFn         func(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	createFn      func(ctx context.Context, input service.CreateInput) (tenant.Tenant, error)
	updateFn      func(ctx context.Context, id uuid.UUID, input service.UpdateInput) (tenant.Tenant, error)
	setBrandingFn func(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error)
	setFeaturesFn func(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error)
}

func (m *mockService) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, opts)
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockService) Create(ctx context.Context, input service.CreateInput) (tenant.Tenant, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, input)
}

func (m *mockService) Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (tenant.Tenant, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, id, input)
}

func (m *mockService) SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
	if m.setBrandingFn == nil {
		panic("setBrandingFn not configured")
	}
	return m.setBrandingFn(ctx, id, b)
}

func (m *mockService) SetFeatures(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error) {
	if m.setFeaturesFn == nil {
		panic("setFeaturesFn not configured")
	}
	return m.setFeaturesFn(ctx, id, f)
}

type mockResolver struct {
	resolveFn func(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error)
	listFn    func(ctx context.Context) (tenant.TenantList, error)
	switchFn  func(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

func (m *mockResolver) Resolve(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error) {
	if m.resolveFn == nil {
		panic("resolveFn not configured")
	}
	return m.resolveFn(ctx, lookup)
}

func (m *mockResolver) ListForUser(ctx context.Context) (tenant.TenantList, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx)
}

func (m *mockResolver) Switch(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	if m.switchFn == nil {
		panic("switchFn not configured")
	}
	return m.switchFn(ctx, id)
}

func newRouter(t *testing.T, svc *mockService, resolver *mockResolver, events EventLister) http.Handler {
	t.Helper()
	if events == nil {
		events = security.NewMemorySink()
	}
	h := New(svc, resolver, events, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Route("/admin", h.AdminRoutes)
	r.Route("/tenant-context", h.ContextRoutes)
	return r
}

func sampleTenant() tenant.Tenant {
	t := tenant.Tenant{ID: uuid.New(), Name: "Green Valley", Slug: "green-valley", Status: tenant.StatusActive}
	t.ApplyDefaults()
	return t
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	require.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
	var p problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestTenantsCreateSuccess(t *testing.T) {
	t.Parallel()

	created := sampleTenant()
	svc := &mockService{createFn: func(ctx context.Context, input service.CreateInput) (tenant.Tenant, error) {
		require.Equal(t, "Green Valley", input.Name)
		require.Equal(t, "green-valley", input.Slug)
		require.True(t, input.Features.Enabled(tenant.FeatureAnalytics))
		require.Equal(t, int64(500), input.Limits.Farmers.Max)
		return created, nil
	}}

	body := `{"name":"Green Valley","slug":"green-valley","features":{"analytics":true},"limits":{"farmers":500}}`
	rec := httptest.NewRecorder()
	newRouter(t, svc, &mockResolver{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/tenants", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/api/v1/admin/tenants/"+created.ID.String(), rec.Header().Get("Location"))

	var got tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, created.ID, got.ID)
	require.True(t, got.Accessible)
	require.Equal(t, "Palmyra Agri", got.Branding.AppName)
}

func TestTenantsCreateErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "unknown field", body: `{"name":"x","bogus":1}`, status: http.StatusBadRequest},
		{name: "validation", body: `{"name":"x"}`, err: &service.ValidationError{Fields: service.FieldErrors{"slug": {"slug is required"}}}, status: http.StatusBadRequest},
		{name: "conflict", body: `{"name":"x","slug":"x"}`, err: service.ErrConflictSlug, status: http.StatusConflict},
		{name: "denied", body: `{"name":"x","slug":"x"}`, err: &security.AccessDeniedError{Reason: security.ReasonInsufficientRole}, status: http.StatusForbidden},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mockService{createFn: func(context.Context, service.CreateInput) (tenant.Tenant, error) {
				return tenant.Tenant{}, tc.err
			}}
			rec := httptest.NewRecorder()
			newRouter(t, svc, &mockResolver{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/tenants", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code)
			p := decodeProblem(t, rec)
			require.Equal(t, tc.status, p.Status)
			if tc.name == "validation" {
				require.Equal(t, []string{"slug is required"}, p.Errors["slug"])
			}
		})
	}
}

func TestTenantsListParsesQuery(t *testing.T) {
	t.Parallel()

	svc := &mockService{listFn: func(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
		require.Equal(t, 2, opts.Page)
		require.Equal(t, 5, opts.PageSize)
		require.Equal(t, tenant.StatusSuspended, *opts.Status)
		return service.ListResult{Tenants: []tenant.Tenant{sampleTenant()}, Page: 2, PageSize: 5, TotalItems: 6, TotalPages: 2}, nil
	}}

	rec := httptest.NewRecorder()
	newRouter(t, svc, &mockResolver{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants?page=2&pageSize=5&status=suspended", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got tenantListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 1)
	require.Equal(t, 6, got.TotalItems)

	rec = httptest.NewRecorder()
	newRouter(t, svc, &mockResolver{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants?status=archived", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantsGetNotFoundAndBadID(t *testing.T) {
	t.Parallel()

	svc := &mockService{getFn: func(context.Context, uuid.UUID) (tenant.Tenant, error) {
		return tenant.Tenant{}, service.ErrNotFound
	}}
	router := newRouter(t, svc, &mockResolver{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/nope", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantsSetFeaturesAndBranding(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{
		setFeaturesFn: func(ctx context.Context, got uuid.UUID, f tenant.Features) (tenant.Tenant, error) {
			require.Equal(t, id, got)
			require.True(t, f.Enabled(tenant.FeatureWhiteLabel))
			return sampleTenant(), nil
		},
		setBrandingFn: func(ctx context.Context, got uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
			require.Equal(t, "#000000", b.PrimaryColor)
			return sampleTenant(), nil
		},
	}
	router := newRouter(t, svc, &mockResolver{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/tenants/"+id.String()+"/features", strings.NewReader(`{"features":{"white_label":true}}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/tenants/"+id.String()+"/branding",
		strings.NewReader(`{"appName":"GV","primaryColor":"#000000","secondaryColor":"#FFFFFF"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityEventsList(t *testing.T) {
	t.Parallel()

	sink := security.NewMemorySink()
	tenantID := uuid.New()
	require.NoError(t, sink.Record(context.Background(), security.Event{ID: uuid.New(), Type: security.EventTenantAccessDenied, TenantID: &tenantID}))
	require.NoError(t, sink.Record(context.Background(), security.Event{ID: uuid.New(), Type: security.EventDataAccess}))

	rec := httptest.NewRecorder()
	newRouter(t, &mockService{}, &mockResolver{}, sink).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/admin/security-events?tenantId="+tenantID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got eventListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 1)
	require.Equal(t, string(security.EventTenantAccessDenied), got.Items[0].Type)
}

func TestContextResolve(t *testing.T) {
	t.Parallel()

	resolved := sampleTenant()
	resolver := &mockResolver{resolveFn: func(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error) {
		if lookup.TenantID != nil {
			require.Equal(t, resolved.ID, *lookup.TenantID)
			return tenant.Resolution{Portal: tenant.Portal{Kind: tenant.PortalAdmin}, Tenant: &resolved, FromCache: true}, nil
		}
		require.Equal(t, "example.com", lookup.Host)
		return tenant.Resolution{Portal: tenant.Portal{Kind: tenant.PortalMarketing}}, tenant.ErrNoTenantApplicable
	}}
	router := newRouter(t, &mockService{}, resolver, nil)

	req := httptest.NewRequest(http.MethodGet, "/tenant-context/", nil)
	req.Header.Set("X-Tenant-ID", resolved.ID.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got resolutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Tenant)
	require.True(t, got.FromCache)

	req = httptest.NewRequest(http.MethodGet, "/tenant-context/", nil)
	req.Host = "example.com"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got = resolutionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Nil(t, got.Tenant)
	require.Equal(t, "marketing", got.Portal.Kind)
}

func TestContextResolveDenied(t *testing.T) {
	t.Parallel()

	resolver := &mockResolver{resolveFn: func(context.Context, tenant.Lookup) (tenant.Resolution, error) {
		return tenant.Resolution{}, &security.AccessDeniedError{Reason: security.ReasonNotMember}
	}}
	rec := httptest.NewRecorder()
	newRouter(t, &mockService{}, resolver, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenant-context/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, decodeProblem(t, rec).Detail, security.ReasonNotMember)
}

func TestContextTenantsAndSwitch(t *testing.T) {
	t.Parallel()

	a, b := sampleTenant(), sampleTenant()
	resolver := &mockResolver{
		listFn: func(context.Context) (tenant.TenantList, error) {
			return tenant.TenantList{Tenants: []tenant.Tenant{a, b}, Default: &b}, nil
		},
		switchFn: func(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
			if id == a.ID {
				return a, nil
			}
			return tenant.Tenant{}, &security.AccessDeniedError{TenantID: &id, Reason: security.ReasonTenantInactive}
		},
	}
	router := newRouter(t, &mockService{}, resolver, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenant-context/tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list tenantChoicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	require.Equal(t, b.ID, *list.DefaultTenantID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenant-context/switch", strings.NewReader(`{"tenantId":"`+a.ID.String()+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenant-context/switch", strings.NewReader(`{"tenantId":"`+uuid.NewString()+`"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenant-context/switch", strings.NewReader(`{"tenantId":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextTenantsUnauthenticated(t *testing.T) {
	t.Parallel()

	resolver := &mockResolver{listFn: func(context.Context) (tenant.TenantList, error) {
		return tenant.TenantList{}, tenant.ErrUnauthenticated
	}}
	rec := httptest.NewRecorder()
	newRouter(t, &mockService{}, resolver, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenant-context/tenants", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
