package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type operation string

const (
	opList        operation = "list"
	opCreate      operation = "create"
	opGet         operation = "get"
	opUpdate      operation = "update"
	opBranding    operation = "branding"
	opFeatures    operation = "features"
	opEvents      operation = "events"
	opResolve     operation = "resolve"
	opListForUser operation = "list_for_user"
	opSwitch      operation = "switch"
)

// AdminService is the tenant registry surface used by the admin routes.
type AdminService interface {
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	Create(ctx context.Context, input service.CreateInput) (tenant.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (tenant.Tenant, error)
	SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error)
	SetFeatures(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error)
}

// ContextResolver is implemented by *tenant.Resolver.
type ContextResolver interface {
	Resolve(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error)
	ListForUser(ctx context.Context) (tenant.TenantList, error)
	Switch(ctx context.Context, tenantID uuid.UUID) (tenant.Tenant, error)
}

// EventLister lists recorded security events.
type EventLister interface {
	Recent(ctx context.Context, filter security.EventFilter) ([]security.Event, error)
}

// Handler serves the tenant admin and tenant-context routes.
type Handler struct {
	svc      AdminService
	resolver ContextResolver
	events   EventLister
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc AdminService, resolver ContextResolver, events EventLister, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if resolver == nil {
		panic("tenant resolver is required")
	}
	if events == nil {
		panic("security event lister is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, resolver: resolver, events: events, logger: logger}
}

// AdminRoutes mounts /admin/tenants and /admin/security-events. Callers
// guard the group with a platform admin check.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/tenants", h.TenantsList)
	r.Post("/tenants", h.TenantsCreate)
	r.Get("/tenants/{id}", h.TenantsGet)
	r.Patch("/tenants/{id}", h.TenantsUpdate)
	r.Put("/tenants/{id}/branding", h.TenantsSetBranding)
	r.Put("/tenants/{id}/features", h.TenantsSetFeatures)
	r.Get("/security-events", h.SecurityEventsList)
}

// ContextRoutes mounts /tenant-context.
func (h *Handler) ContextRoutes(r chi.Router) {
	r.Get("/", h.ContextResolve)
	r.Get("/tenants", h.ContextTenants)
	r.Post("/switch", h.ContextSwitch)
}

// TenantsList implements GET /admin/tenants
func (h *Handler) TenantsList(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, opList, &service.ValidationError{Fields: service.FieldErrors{"page": {"must be an integer"}}})
			return
		}
		opts.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, opList, &service.ValidationError{Fields: service.FieldErrors{"pageSize": {"must be an integer"}}})
			return
		}
		opts.PageSize = size
	}
	if v := q.Get("status"); v != "" {
		status, ok := tenant.ParseStatus(v)
		if !ok {
			h.writeError(w, r, opList, &service.ValidationError{Fields: service.FieldErrors{"status": {fmt.Sprintf("unknown status %q", v)}}})
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, opList, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toTenantResponse(t))
	}
	problem.WriteJSON(w, http.StatusOK, tenantListResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// TenantsCreate implements POST /admin/tenants
func (h *Handler) TenantsCreate(w http.ResponseWriter, r *http.Request) {
	var body createTenantRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opCreate, err)
		return
	}

	t, err := h.svc.Create(r.Context(), body.toInput())
	if err != nil {
		h.writeError(w, r, opCreate, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/tenants/%s", t.ID))
	problem.WriteJSON(w, http.StatusCreated, toTenantResponse(t))
}

// TenantsGet implements GET /admin/tenants/{id}
func (h *Handler) TenantsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, opGet)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, opGet, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toTenantResponse(t))
}

// TenantsUpdate implements PATCH /admin/tenants/{id}
func (h *Handler) TenantsUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, opUpdate)
	if !ok {
		return
	}
	var body updateTenantRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opUpdate, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), id, body.toInput())
	if err != nil {
		h.writeError(w, r, opUpdate, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toTenantResponse(updated))
}

// TenantsSetBranding implements PUT /admin/tenants/{id}/branding
func (h *Handler) TenantsSetBranding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, opBranding)
	if !ok {
		return
	}
	var body brandingBody
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opBranding, err)
		return
	}

	updated, err := h.svc.SetBranding(r.Context(), id, body.toBranding())
	if err != nil {
		h.writeError(w, r, opBranding, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toTenantResponse(updated))
}

// TenantsSetFeatures implements PUT /admin/tenants/{id}/features
func (h *Handler) TenantsSetFeatures(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, opFeatures)
	if !ok {
		return
	}
	var body featuresRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opFeatures, err)
		return
	}

	updated, err := h.svc.SetFeatures(r.Context(), id, toFeatures(body.Features))
	if err != nil {
		h.writeError(w, r, opFeatures, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toTenantResponse(updated))
}

// SecurityEventsList implements GET /admin/security-events
func (h *Handler) SecurityEventsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter security.EventFilter

	if v := q.Get("tenantId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.writeError(w, r, opEvents, &service.ValidationError{Fields: service.FieldErrors{"tenantId": {"must be a uuid"}}})
			return
		}
		filter.TenantID = &id
	}
	if v := q.Get("userId"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("type"); v != "" {
		typ := security.EventType(v)
		filter.Type = &typ
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, opEvents, &service.ValidationError{Fields: service.FieldErrors{"limit": {"must be an integer"}}})
			return
		}
		filter.Limit = limit
	}

	events, err := h.events.Recent(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, opEvents, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, toEventResponse(e))
	}
	problem.WriteJSON(w, http.StatusOK, eventListResponse{Items: items})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, op operation) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, op, &service.ValidationError{Fields: service.FieldErrors{"id": {"must be a uuid"}}})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	problem.Write(w, r, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problem.Details {
	status, title, detail, problemType, fields := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("tenant operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("tenant resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("tenant request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(status, title, detail, problemType, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	var deniedErr *security.AccessDeniedError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problem.TypeValidation,
			validationErr.Fields
	case errors.Is(err, problem.ErrInvalidBody):
		return http.StatusBadRequest,
			"Invalid request body",
			err.Error(),
			problem.TypeValidation,
			nil
	case errors.Is(err, service.ErrNotFound), errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"tenant not found",
			problem.TypeNotFound,
			nil
	case errors.Is(err, service.ErrConflictSlug):
		return http.StatusConflict,
			"Conflict",
			err.Error(),
			problem.TypeConflict,
			nil
	case errors.Is(err, tenant.ErrUnauthenticated), errors.Is(err, platformauth.ErrNoSession):
		return http.StatusUnauthorized,
			"Unauthorized",
			"authentication required",
			problem.TypeUnauthorized,
			nil
	case errors.As(err, &deniedErr):
		return http.StatusForbidden,
			"Forbidden",
			"access denied: " + deniedErr.Reason,
			problem.TypeForbidden,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problem.TypeInternal,
			nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
