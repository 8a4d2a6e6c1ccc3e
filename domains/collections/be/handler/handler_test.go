package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/orchestrator"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type mockService struct {
	listFn   func(ctx context.Context, tenantID uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error)
	getFn    func(ctx context.Context, tenantID uuid.UUID, collection, id string) (scopeddb.Row, error)
	createFn func(ctx context.Context, tenantID uuid.UUID, collection string, row scopeddb.Row) (scopeddb.Row, error)
	updateFn func(ctx context.Context, tenantID uuid.UUID, collection, id string, values scopeddb.Row) (scopeddb.Row, error)
	deleteFn func(ctx context.Context, tenantID uuid.UUID, collection, id string) error
	invokeFn func(ctx context.Context, tenantID uuid.UUID, name string, payload map[string]any) (any, error)
}

var errUnexpected = errors.New("unexpected call")

func (m *mockService) List(ctx context.Context, tenantID uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error) {
	if m.listFn == nil {
		return nil, errUnexpected
	}
	return m.listFn(ctx, tenantID, collection, opts)
}

func (m *mockService) Get(ctx context.Context, tenantID uuid.UUID, collection, id string) (scopeddb.Row, error) {
	if m.getFn == nil {
		return nil, errUnexpected
	}
	return m.getFn(ctx, tenantID, collection, id)
}

func (m *mockService) Create(ctx context.Context, tenantID uuid.UUID, collection string, row scopeddb.Row) (scopeddb.Row, error) {
	if m.createFn == nil {
		return nil, errUnexpected
	}
	return m.createFn(ctx, tenantID, collection, row)
}

func (m *mockService) Update(ctx context.Context, tenantID uuid.UUID, collection, id string, values scopeddb.Row) (scopeddb.Row, error) {
	if m.updateFn == nil {
		return nil, errUnexpected
	}
	return m.updateFn(ctx, tenantID, collection, id, values)
}

func (m *mockService) Delete(ctx context.Context, tenantID uuid.UUID, collection, id string) error {
	if m.deleteFn == nil {
		return errUnexpected
	}
	return m.deleteFn(ctx, tenantID, collection, id)
}

func (m *mockService) Invoke(ctx context.Context, tenantID uuid.UUID, name string, payload map[string]any) (any, error) {
	if m.invokeFn == nil {
		return nil, errUnexpected
	}
	return m.invokeFn(ctx, tenantID, name, payload)
}

func newRouter(t *testing.T, svc *mockService) http.Handler {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Route("/tenants/{tenantId}", h.Routes)
	return r
}

func TestRecordsListParsesPaging(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	svc := &mockService{listFn: func(ctx context.Context, id uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error) {
		require.Equal(t, tenantID, id)
		require.Equal(t, "farmers", collection)
		require.Equal(t, service.ListOptions{Limit: 10, Offset: 20}, opts)
		return nil, nil
	}}
	router := newRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/collections/farmers?limit=10&offset=20", tenantID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"items":[],"limit":10,"offset":20}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/collections/farmers?limit=-1", tenantID), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordsCreateNormalizesNumbers(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	svc := &mockService{createFn: func(ctx context.Context, id uuid.UUID, collection string, row scopeddb.Row) (scopeddb.Row, error) {
		require.Equal(t, int64(1250), row["price_cents"])
		require.Equal(t, 2.5, row["weight"])
		out := row.Clone()
		out["id"] = "rec-1"
		return out, nil
	}}

	rec := httptest.NewRecorder()
	body := `{"name":"Urea","price_cents":1250,"weight":2.5}`
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/tenants/%s/collections/products", tenantID), strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, fmt.Sprintf("/api/v1/tenants/%s/collections/products/rec-1", tenantID), rec.Header().Get("Location"))
}

func TestRecordsUpdateAndDelete(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	svc := &mockService{
		updateFn: func(ctx context.Context, id uuid.UUID, collection, recordID string, values scopeddb.Row) (scopeddb.Row, error) {
			require.Equal(t, "rec-1", recordID)
			return scopeddb.Row{"id": recordID, "region": values["region"]}, nil
		},
		deleteFn: func(ctx context.Context, id uuid.UUID, collection, recordID string) error {
			return service.ErrNotFound
		},
	}
	router := newRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/tenants/%s/collections/dealers/rec-1", tenantID), strings.NewReader(`{"region":"East"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"rec-1","region":"East"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/tenants/%s/collections/dealers/rec-1", tenantID), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordsErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "unknown collection", err: fmt.Errorf("%w: invoices", service.ErrUnknownCollection), status: http.StatusNotFound, typ: problem.TypeNotFound},
		{name: "feature disabled", err: service.ErrFeatureDisabled, status: http.StatusForbidden, typ: problem.TypeForbidden},
		{name: "limit", err: &service.LimitError{Collection: "farmers", Limit: tenant.Limit{Max: 2, Current: 2}}, status: http.StatusForbidden, typ: problem.TypeLimitExceeded},
		{name: "schema", err: &scopeddb.ValidationError{Fields: scopeddb.FieldErrors{"name": "required"}}, status: http.StatusBadRequest, typ: problem.TypeValidation},
		{name: "tenant missing", err: tenant.ErrNotFound, status: http.StatusNotFound, typ: problem.TypeNotFound},
		{name: "upstream", err: &orchestrator.StatusError{StatusCode: 500}, status: http.StatusBadGateway, typ: problem.TypeUpstream},
		{name: "internal", err: errors.New("boom"), status: http.StatusInternalServerError, typ: problem.TypeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{listFn: func(ctx context.Context, id uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error) {
				return nil, tc.err
			}}
			rec := httptest.NewRecorder()
			newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/collections/farmers", uuid.New()), nil))

			require.Equal(t, tc.status, rec.Code)
			var p problem.Details
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			require.Equal(t, tc.typ, p.Type)
		})
	}
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	t.Parallel()

	svc := &mockService{listFn: func(ctx context.Context, id uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error) {
		return nil, &orchestrator.RateLimitError{Key: id.String(), Limit: 5, RetryAfter: 1500 * time.Millisecond}
	}}
	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/collections/farmers", uuid.New()), nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestFunctionsInvoke(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	svc := &mockService{invokeFn: func(ctx context.Context, id uuid.UUID, name string, payload map[string]any) (any, error) {
		require.Equal(t, "score-farmers", name)
		require.Equal(t, float64(3), payload["batch"])
		return map[string]any{"scored": 3}, nil
	}}

	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/tenants/%s/functions/score-farmers", tenantID), strings.NewReader(`{"batch":3}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"scored":3}}`, rec.Body.String())
}
