package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant/middleware"
)

// ContextResolve implements GET /tenant-context. The explicit X-Tenant-ID
// header wins over the Host. Portals without a tenant answer with a null tenant.
func (h *Handler) ContextResolve(w http.ResponseWriter, r *http.Request) {
	lookup := tenant.Lookup{Host: r.Host}
	if raw := r.Header.Get(tenantmw.DefaultTenantHeader); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, opResolve, &service.ValidationError{Fields: service.FieldErrors{tenantmw.DefaultTenantHeader: {"must be a uuid"}}})
			return
		}
		lookup.TenantID = &id
	}

	res, err := h.resolver.Resolve(r.Context(), lookup)
	if err != nil && !errors.Is(err, tenant.ErrNoTenantApplicable) {
		h.writeError(w, r, opResolve, err)
		return
	}

	body := resolutionResponse{
		Portal:    portalResponse{Kind: string(res.Portal.Kind), Slug: res.Portal.Slug, Domain: res.Portal.Domain},
		FromCache: res.FromCache,
	}
	if res.Tenant != nil {
		t := toTenantResponse(*res.Tenant)
		body.Tenant = &t
	}
	for _, t := range res.Tenants {
		body.Tenants = append(body.Tenants, toTenantSummary(t))
	}
	problem.WriteJSON(w, http.StatusOK, body)
}

// ContextTenants implements GET /tenant-context/tenants
func (h *Handler) ContextTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.resolver.ListForUser(r.Context())
	if err != nil {
		h.writeError(w, r, opListForUser, err)
		return
	}

	body := tenantChoicesResponse{Items: make([]tenantSummary, 0, len(list.Tenants))}
	for _, t := range list.Tenants {
		body.Items = append(body.Items, toTenantSummary(t))
	}
	if list.Default != nil {
		id := list.Default.ID
		body.DefaultTenantID = &id
	}
	problem.WriteJSON(w, http.StatusOK, body)
}

// ContextSwitch implements POST /tenant-context/switch
func (h *Handler) ContextSwitch(w http.ResponseWriter, r *http.Request) {
	var body switchRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opSwitch, err)
		return
	}
	id, err := uuid.Parse(body.TenantID)
	if err != nil {
		h.writeError(w, r, opSwitch, &service.ValidationError{Fields: service.FieldErrors{"tenantId": {"must be a uuid"}}})
		return
	}

	t, err := h.resolver.Switch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, opSwitch, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toTenantResponse(t))
}
