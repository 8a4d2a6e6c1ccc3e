package main

import (
	"context"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	collectionshandler "github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/handler"
	collectionsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/service"
	membershipshandler "github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/handler"
	membershipsrepo "github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/repo"
	membershipsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/service"
	tenantshandler "github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/handler"
	tenantsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-agri-admin/platform/go/middleware"
	tenantmiddleware "github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant/middleware"
)

const readinessTimeout = 2 * time.Second

// newRouter mounts the public routes and the /api/v1 groups. spec is the
// access contract shared by every validated group.
func newRouter(cfg config, a *app, spec *openapi3.T, authMiddleware func(http.Handler) http.Handler, logger *zap.Logger) http.Handler {
	tenantService := tenantsservice.New(a.backends.tenants, a.resolver, a.validator)
	tenantHTTPHandler := tenantshandler.New(tenantService, a.resolver, a.backends.events, logger)

	memberService := membershipsservice.New(membershipsrepo.NewGatewayRepository(a.gateway), a.validator, a.validator)
	memberHTTPHandler := membershipshandler.New(memberService, logger)

	recordService := collectionsservice.New(collectionsservice.Config{
		Gateway:   a.gateway,
		Tenants:   a.resolver,
		Executor:  a.orch,
		Admins:    a.validator,
		Functions: a.functions,
	})
	recordHTTPHandler := collectionshandler.New(recordService, logger)

	specValidator := platformmiddleware.NewSpecValidator(spec)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Group(func(r chi.Router) {
		r.Use(platformmiddleware.DefaultCORS())

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := a.backends.ready(ctx); err != nil {
				platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

		// ---- Swagger UI + OpenAPI JSON (public) ----
		registerDocsRoutes(r, logger)
	})

	rootRouter.Route("/api/v1", func(api chi.Router) {
		api.Use(authMiddleware)
		api.Use(platformmiddleware.RequestTrace)

		api.Route("/tenant-context", func(r chi.Router) {
			r.Use(platformmiddleware.TenantCORS())
			r.Use(specValidator)
			tenantHTTPHandler.ContextRoutes(r)
		})

		api.Route("/admin", func(r chi.Router) {
			r.Use(platformmiddleware.TenantCORS())
			r.Use(specValidator)
			r.Use(platformmiddleware.RequireRole(a.validator, platformauth.RolePlatformAdmin))
			tenantHTTPHandler.AdminRoutes(r)
		})

		api.Route("/tenants/{"+platformmiddleware.TenantIDParam+"}", func(r chi.Router) {
			r.Use(tenantmiddleware.WithTenantContext(a.resolver, tenantmiddleware.Config{
				PathParam:     platformmiddleware.TenantIDParam,
				AllowInactive: true,
				Logger:        logger,
			}))
			r.Use(platformmiddleware.TenantCORS())
			r.Use(platformmiddleware.IPAllowlist(a.validator))
			r.Use(specValidator)
			r.Use(platformmiddleware.RequireTenantMember(a.validator))
			memberHTTPHandler.Routes(r)
			recordHTTPHandler.Routes(r)
		})
	})

	return rootRouter
}
