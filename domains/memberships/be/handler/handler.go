package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/problem"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

type operation string

const (
	opList   operation = "list"
	opAdd    operation = "add"
	opRemove operation = "remove"
)

// Service is the membership surface used by the HTTP layer.
type Service interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]service.Member, error)
	Add(ctx context.Context, tenantID uuid.UUID, input service.AddInput) (service.Member, error)
	Remove(ctx context.Context, tenantID uuid.UUID, userID string) error
}

// Handler serves /tenants/{tenantId}/members.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("memberships service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the member routes under a router already scoped to
// /tenants/{tenantId}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/members", h.MembersList)
	r.Post("/members", h.MembersAdd)
	r.Delete("/members/{userId}", h.MembersRemove)
}

type addMemberRequest struct {
	UserID   string         `json:"userId"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type memberResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	TenantID  uuid.UUID      `json:"tenantId"`
	Role      string         `json:"role"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

type memberListResponse struct {
	Items []memberResponse `json:"items"`
}

func toMemberResponse(m service.Member) memberResponse {
	md := m.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return memberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		TenantID:  m.TenantID,
		Role:      m.Role.String(),
		Metadata:  md,
		CreatedAt: m.CreatedAt,
	}
}

// MembersList implements GET /tenants/{tenantId}/members
func (h *Handler) MembersList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opList)
	if !ok {
		return
	}
	members, err := h.svc.List(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, r, opList, err)
		return
	}
	items := make([]memberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, toMemberResponse(m))
	}
	problem.WriteJSON(w, http.StatusOK, memberListResponse{Items: items})
}

// MembersAdd implements POST /tenants/{tenantId}/members
func (h *Handler) MembersAdd(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opAdd)
	if !ok {
		return
	}
	var body addMemberRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.writeError(w, r, opAdd, err)
		return
	}

	m, err := h.svc.Add(r.Context(), tenantID, service.AddInput{UserID: body.UserID, Role: body.Role, Metadata: body.Metadata})
	if err != nil {
		h.writeError(w, r, opAdd, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s/members/%s", tenantID, m.UserID))
	problem.WriteJSON(w, http.StatusCreated, toMemberResponse(m))
}

// MembersRemove implements DELETE /tenants/{tenantId}/members/{userId}
func (h *Handler) MembersRemove(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r, opRemove)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), tenantID, chi.URLParam(r, "userId")); err != nil {
		h.writeError(w, r, opRemove, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request, op operation) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, middleware.TenantIDParam))
	if err != nil {
		h.writeError(w, r, op, &service.ValidationError{Fields: service.FieldErrors{"tenantId": {"must be a uuid"}}})
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
		logger.Error("membership operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("membership not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("membership request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(status, title, detail, problemType, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	var scopedErr *scopeddb.ValidationError
	var deniedErr *security.AccessDeniedError
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
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"membership not found",
			problem.TypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			err.Error(),
			problem.TypeConflict,
			nil
	case errors.Is(err, platformauth.ErrNoSession):
		return http.StatusUnauthorized,
			"Unauthorized",
			"authentication required",
			problem.TypeUnauthorized,
			nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden,
			"Forbidden",
			err.Error(),
			problem.TypeForbidden,
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
