package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// DefaultTenantHeader carries an explicit tenant id on API calls.
const DefaultTenantHeader = "X-Tenant-ID"

// Resolver is implemented by *tenant.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error)
}

// Config controls middleware behavior.
type Config struct {
	// Header overrides DefaultTenantHeader.
	Header string
	// PathParam names a chi route parameter carrying the tenant id. When set
	// it wins over the header.
	PathParam string
	// AllowInactive lets suspended, expired and cancelled tenants through.
	AllowInactive bool
	Logger        *zap.Logger
}

// WithTenantContext resolves the tenant of each request and attaches it to the
// context. The route parameter wins, then the explicit header, then the
// token's tenant claim, then the Host. Requests on portals without a tenant
// continue without one, and preflight requests are never resolved.
func WithTenantContext(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	header := cfg.Header
	if header == "" {
		header = DefaultTenantHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			logger := platformlogging.FromRequest(r, cfg.Logger)

			lookup := tenant.Lookup{Host: r.Host}
			raw := ""
			if cfg.PathParam != "" {
				raw = chi.URLParam(r, cfg.PathParam)
			}
			if raw == "" {
				raw = r.Header.Get(header)
			}
			if raw == "" {
				if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds.TenantID != nil {
					raw = *creds.TenantID
				}
			}
			if raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					http.Error(w, "invalid tenant id", http.StatusBadRequest)
					return
				}
				lookup.TenantID = &id
			}

			res, err := resolver.Resolve(r.Context(), lookup)
			ctx := tenant.WithPortal(r.Context(), res.Portal)
			switch {
			case err == nil:
			case errors.Is(err, tenant.ErrNoTenantApplicable):
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case errors.Is(err, tenant.ErrUnauthenticated):
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case errors.Is(err, tenant.ErrNotFound):
				http.Error(w, "tenant not found", http.StatusNotFound)
				return
			case errors.Is(err, security.ErrAccessDenied):
				http.Error(w, "tenant access denied", http.StatusForbidden)
				return
			default:
				if logger != nil {
					logger.Error("resolve tenant", zap.Error(err))
				}
				http.Error(w, "tenant resolution unavailable", http.StatusServiceUnavailable)
				return
			}

			t := *res.Tenant
			if !t.Accessible() && !cfg.AllowInactive {
				http.Error(w, "tenant inactive", http.StatusForbidden)
				return
			}

			ctx = tenant.WithTenant(ctx, t)
			if audit, ok := requesttrace.FromContext(ctx); ok {
				ctx = requesttrace.IntoContext(ctx, audit.WithTenant(t.ID.String()))
			}
			if logger != nil {
				ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("tenant_id", t.ID.String())))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that reached it without a resolved tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.FromContext(r.Context()); !ok {
			http.Error(w, "tenant required", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
