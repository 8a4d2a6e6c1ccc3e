package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

func TestFunctionInvoker(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		require.Equal(t, "/functions/v1/send-webhook-test", r.URL.Path)
		require.Equal(t, tenantID.String(), r.Header.Get(HeaderTenantID))
		require.Equal(t, "2024-01", r.Header.Get(HeaderAPIVersion))
		require.NotEmpty(t, r.Header.Get(HeaderCorrelationID))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, tenantID.String(), body["tenant_id"])
		require.Equal(t, "https://hooks.example.com", body["url"])

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"delivered":true}`))
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t)
	inv := NewFunctionInvoker(h.orch, FunctionsConfig{BaseURL: srv.URL + "/", Client: srv.Client(), Recorder: h.recorder})

	res := inv.Invoke(context.Background(), "send-webhook-test", &tenantID, map[string]any{"url": "https://hooks.example.com"})
	require.True(t, res.Success, res.Error)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, map[string]any{"delivered": true}, res.Data)

	events := h.recorder.ofType(security.EventFunctionInvoked)
	require.Len(t, events, 1)
	require.Equal(t, "send-webhook-test", events[0].Metadata["function"])
	require.Equal(t, true, events[0].Metadata["success"])
}

func TestFunctionInvokerUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAuthorization) == "Bearer tok-refreshed" {
			_, _ = w.Write([]byte(`"ok"`))
			return
		}
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t)
	inv := NewFunctionInvoker(h.orch, FunctionsConfig{BaseURL: srv.URL, Client: srv.Client()})

	res := inv.Invoke(context.Background(), "admin-bootstrap", nil, nil)
	require.True(t, res.Success, res.Error)
	require.Equal(t, "ok", res.Data)
	require.Equal(t, 1, h.tokens.refreshes)
}

func TestFunctionInvokerRejectsBadName(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	inv := NewFunctionInvoker(h.orch, FunctionsConfig{BaseURL: "http://localhost"})
	res := inv.Invoke(context.Background(), "../admin", nil, nil)
	require.False(t, res.Success)
	require.Equal(t, KindValidation, res.Kind)
}
