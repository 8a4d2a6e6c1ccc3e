package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// TenantIDParam is the chi URL parameter naming the tenant of scoped routes.
const TenantIDParam = "tenantId"

// APIAccessChecker is implemented by *security.Validator.
type APIAccessChecker interface {
	ValidateAPIAccess(ctx context.Context, tenantID *uuid.UUID, required *platformauth.Role) security.APIAccessResult
}

// RequireRole admits requests whose user holds required globally.
func RequireRole(checker APIAccessChecker, required platformauth.Role) func(http.Handler) http.Handler {
	if checker == nil {
		panic("access guard: checker is required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := checker.ValidateAPIAccess(r.Context(), nil, &required)
			if !res.Allowed {
				denyAPIAccess(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenantMember admits requests whose user may access the tenant named
// by the TenantIDParam URL parameter.
func RequireTenantMember(checker APIAccessChecker) func(http.Handler) http.Handler {
	if checker == nil {
		panic("access guard: checker is required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, TenantIDParam))
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusBadRequest)
				return
			}
			res := checker.ValidateAPIAccess(r.Context(), &id, nil)
			if !res.Allowed {
				denyAPIAccess(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func denyAPIAccess(w http.ResponseWriter, res security.APIAccessResult) {
	if res.Reason == security.ReasonUnauthenticated {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}
