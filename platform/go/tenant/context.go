package tenant

import (
	"context"
)

type ctxKey string

const (
	tenantKey ctxKey = "PALMYRA_TENANT"
	portalKey ctxKey = "PALMYRA_PORTAL"
)

// WithTenant returns a derived context carrying the resolved tenant.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext extracts the resolved tenant and a boolean indicating presence.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(Tenant)
	return t, ok
}

// WithPortal stores the portal classification of the request.
func WithPortal(ctx context.Context, p Portal) context.Context {
	return context.WithValue(ctx, portalKey, p)
}

// PortalFromContext returns the portal classification, defaulting to marketing.
func PortalFromContext(ctx context.Context) Portal {
	if p, ok := ctx.Value(portalKey).(Portal); ok {
		return p
	}
	return Portal{Kind: PortalMarketing}
}
