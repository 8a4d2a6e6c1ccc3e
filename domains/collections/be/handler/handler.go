package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/orchestrator"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type operation string

const (
	opList   operation = "list"
	opGet    operation = "get"
	opCreate operation = "create"
	opUpdate operation = "update"
	opDelete operation = "delete"
	opInvoke operation = "invoke"
)

// Service is the collections surface used by the HTTP layer.
type Service interface {
	List(ctx context.Context, tenantID uuid.UUID, collection string, opts service.ListOptions) ([]scopeddb.Row, error)
	Get(ctx context.Context, tenantID uuid.UUID, collection, id string) (scopeddb.Row, error)
	Create(ctx context.Context, tenantID uuid.UUID, collection string, row scopeddb.Row) (scopeddb.Row, error)
	Update(ctx context.Context, tenantID uuid.UUID, collection, id string, values scopeddb.Row) (scopeddb.Row, error)
	Delete(ctx context.Context, tenantID uuid.UUID, collection, id string) error
	Invoke(ctx context.Context, tenantID uuid.UUID, name string, payload map[string]any) (any, error)
}

// Handler serves tenant collections and function calls.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("collections service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the collection and function routes under a router already
// scoped to /tenants/{tenantId}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/collections/{collection}", h.RecordsList)
	r.Post("/collections/{collection}", h.RecordsCreate)
	r.Get("/collections/{collection}/{id}", h.RecordsGet)
	r.Patch("/collections/{collection}/{id}", h.RecordsUpdate)
	r.Delete("/collections/{collection}/{id}", h.RecordsDelete)
	r.Post("/functions/{name}", h.FunctionsInvoke)
}

type recordListResponse struct {
	Items  []scopeddb.Row `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type functionResponse struct {
	Data any `json:"data"`
}

// RecordsList implements GET /tenants/{tenantId}/collections/{collection}
func (h *Handler) RecordsList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opList)
	if !ok {
		return
	}

	opts := service.ListOptions{Limit: service.DefaultPageSize}
	q := r.URL.Query()
	for _, param := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(param.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, opList, &service.ValidationError{Fields: service.FieldErrors{param.name: {"must be a non-negative integer"}}})
			return
		}
		*param.dst = n
	}

	rows, err := h.svc.List(r.Context(), tenantID, chi.URLParam(r, "collection"), opts)
	if err != nil {
		h.writeError(w, r, opList, err)
		return
	}
	if rows == nil {
		rows = []scopeddb.Row{}
	}
	problem.WriteJSON(w, http.StatusOK, recordListResponse{Items: rows, Limit: opts.Limit, Offset: opts.Offset})
}

// RecordsGet implements GET /tenants/{tenantId}/collections/{collection}/{id}
func (h *Handler) RecordsGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opGet)
	if !ok {
		return
	}
	row, err := h.svc.Get(r.Context(), tenantID, chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, opGet, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, row)
}

// RecordsCreate implements POST /tenants/{tenantId}/collections/{collection}
func (h *Handler) RecordsCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opCreate)
	if !ok {
		return
	}
	body, ok := h.decodeRow(w, r, opCreate)
	if !ok {
		return
	}

	collection := chi.URLParam(r, "collection")
	row, err := h.svc.Create(r.Context(), tenantID, collection, body)
	if err != nil {
		h.writeError(w, r, opCreate, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s/collections/%s/%v", tenantID, collection, row["id"]))
	problem.WriteJSON(w, http.StatusCreated, row)
}

// RecordsUpdate implements PATCH /tenants/{tenantId}/collections/{collection}/{id}
func (h *Handler) RecordsUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opUpdate)
	if !ok {
		return
	}
	body, ok := h.decodeRow(w, r, opUpdate)
	if !ok {
		return
	}

	row, err := h.svc.Update(r.Context(), tenantID, chi.URLParam(r, "collection"), chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeError(w, r, opUpdate, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, row)
}

// RecordsDelete implements DELETE /tenants/{tenantId}/collections/{collection}/{id}
func (h *Handler) RecordsDelete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opDelete)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), tenantID, chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, opDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FunctionsInvoke implements POST /tenants/{tenantId}/functions/{name}
func (h *Handler) FunctionsInvoke(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opInvoke)
	if !ok {
		return
	}
	var payload map[string]any
	if r.ContentLength != 0 {
		if err := problem.DecodeJSON(r, &payload); err != nil {
			h.writeError(w, r, opInvoke, err)
			return
		}
	}

	data, err := h.svc.Invoke(r.Context(), tenantID, chi.URLParam(r, "name"), payload)
	if err != nil {
		h.writeError(w, r, opInvoke, err)
		return
	}
	problem.WriteJSON(w, http.StatusOK, functionResponse{Data: data})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request, op operation) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, middleware.TenantIDParam))
	if err != nil {
		h.writeError(w, r, op, &service.ValidationError{Fields: service.FieldErrors{"tenantId": {"must be a uuid"}}})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decodeRow(w http.ResponseWriter, r *http.Request, op operation) (scopeddb.Row, bool) {
	var body map[string]any
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, op, err)
		return nil, false
	}
	return normalizeRow(body), true
}

// normalizeRow turns whole JSON numbers into int64 so integer columns accept them.
func normalizeRow(in map[string]any) scopeddb.Row {
	out := make(scopeddb.Row, len(in))
	for k, v := range in {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	var limitErr *orchestrator.RateLimitError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limitErr.RetryAfter.Seconds()))))
	}
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
		logger.Error("collection operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("collection resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("collection request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(status, title, detail, problemType, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var (
		validationErr *service.ValidationError
		scopedErr     *scopeddb.ValidationError
		deniedErr     *security.AccessDeniedError
		limitErr      *service.LimitError
		rateErr       *orchestrator.RateLimitError
		upstreamErr   *orchestrator.StatusError
		callErr       *service.CallError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problem.TypeValidation,
			validationErr.Fields
	case errors.As(err, &scopedErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problem.TypeValidation,
			service.FieldErrors(problem.Fields(scopedErr.Fields))
	case errors.Is(err, problem.ErrInvalidBody):
		return http.StatusBadRequest,
			"Invalid request body",
			err.Error(),
			problem.TypeValidation,
			nil
	case errors.Is(err, service.ErrUnknownCollection), errors.Is(err, scopeddb.ErrUnknownCollection):
		return http.StatusNotFound,
			"Resource not found",
			"unknown collection",
			problem.TypeNotFound,
			nil
	case errors.Is(err, service.ErrNotFound), errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			err.Error(),
			problem.TypeNotFound,
			nil
	case errors.Is(err, service.ErrFeatureDisabled):
		return http.StatusForbidden,
			"Feature disabled",
			err.Error(),
			problem.TypeForbidden,
			nil
	case errors.As(err, &limitErr):
		return http.StatusForbidden,
			"Usage limit exceeded",
			limitErr.Error(),
			problem.TypeLimitExceeded,
			nil
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests,
			"Too many requests",
			rateErr.Error(),
			problem.TypeRateLimited,
			nil
	case errors.Is(err, platformauth.ErrNoSession), errors.Is(err, tenant.ErrUnauthenticated):
		return http.StatusUnauthorized,
			"Unauthorized",
			"authentication required",
			problem.TypeUnauthorized,
			nil
	case errors.As(err, &deniedErr):
		if deniedErr.Reason == security.ReasonNoUser || deniedErr.Reason == security.ReasonUnauthenticated {
			return http.StatusUnauthorized,
				"Unauthorized",
				"authentication required",
				problem.TypeUnauthorized,
				nil
		}
		return http.StatusForbidden,
			"Forbidden",
			"access denied: " + deniedErr.Reason,
			problem.TypeForbidden,
			nil
	case errors.Is(err, service.ErrFunctionsDisabled):
		return http.StatusNotImplemented,
			"Not implemented",
			err.Error(),
			problem.TypeUpstream,
			nil
	case errors.As(err, &upstreamErr), errors.As(err, &callErr), orchestrator.IsTransient(err):
		return http.StatusBadGateway,
			"Upstream call failed",
			err.Error(),
			problem.TypeUpstream,
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
