package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTenantID(t *testing.T) {
	tenant := "tenant-dev"
	firebaseTenant := "tenant-firebase"

	testCases := []struct {
		name   string
		claims map[string]interface{}
		want   *string
	}{
		{
			name:   "top level tenantId",
			claims: map[string]interface{}{"tenantId": tenant},
			want:   &tenant,
		},
		{
			name: "firebase tenant claim",
			claims: map[string]interface{}{
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &firebaseTenant,
		},
		{
			name:   "missing tenant",
			claims: map[string]interface{}{},
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTenantID(tc.claims)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tc.want, *got)
		})
	}
}

func TestDefaultCredentialExtractorRoles(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":         "user-123",
		"email":       "user@example.com",
		"tenantId":    "tenant-dev",
		"adminRole":   "platform_admin",
		"tenantRoles": []interface{}{"tenant_admin", "bogus", "farmer"},
	})
	require.NoError(t, err)
	require.Equal(t, "user-123", creds.Id)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, "tenant-dev", *creds.TenantID)
	require.NotNil(t, creds.AdminRole)
	require.Equal(t, RolePlatformAdmin, *creds.AdminRole)
	require.Equal(t, []Role{RoleTenantAdmin, RoleFarmer}, creds.TenantRoles)
}

func TestDefaultCredentialExtractorLegacyAdminFlag(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"sub":     "user-9",
		"isAdmin": true,
	})
	require.NoError(t, err)
	require.NotNil(t, creds.AdminRole)
	require.Equal(t, RoleAdmin, *creds.AdminRole)
}

func TestDefaultCredentialExtractorRequiresSubject(t *testing.T) {
	_, err := DefaultCredentialExtractor(map[string]interface{}{"email": "x@example.com"})
	require.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	payload, err := json.Marshal(map[string]interface{}{"uid": "user-123"})
	require.NoError(t, err)
	token := "header." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"

	var seen *UserCredentials
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-123", seen.Id)
}

func TestJWTMiddlewareRejectsGarbage(t *testing.T) {
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Contains(t, resp.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Id: "u1"}))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
}
