package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound  = errors.New("membership not found")
	ErrConflict  = errors.New("membership already active")
	ErrForbidden = errors.New("tenant admin role required")
)

// Member is an active User-Tenant relationship.
type Member struct {
	ID        string
	UserID    string
	TenantID  uuid.UUID
	Role      platformauth.Role
	Metadata  map[string]any
	CreatedAt time.Time
}

// AddInput is the payload to add a member.
type AddInput struct {
	UserID   string
	Role     string
	Metadata map[string]any
}

// Repository abstracts the tenant-scoped membership collection.
type Repository interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]Member, error)
	CountActive(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error)
	Insert(ctx context.Context, tenantID uuid.UUID, m Member) (Member, error)
	Deactivate(ctx context.Context, tenantID uuid.UUID, userID string) (int64, error)
}

// RoleChecker is implemented by *security.Validator.
type RoleChecker interface {
	ValidateUserRole(ctx context.Context, required platformauth.Role, tenantID *uuid.UUID) bool
}

// EventRecorder is implemented by *security.Validator.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event security.Event)
}

// Service manages tenant memberships.
type Service struct {
	repo     Repository
	roles    RoleChecker
	recorder EventRecorder
}

// New constructs a Service.
func New(repo Repository, roles RoleChecker, recorder EventRecorder) *Service {
	if repo == nil {
		panic("memberships repository is required")
	}
	if roles == nil {
		panic("role checker is required")
	}
	if recorder == nil {
		panic("security event recorder is required")
	}
	return &Service{repo: repo, roles: roles, recorder: recorder}
}

// List returns the active members of tenantID.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Member, error) {
	return s.repo.ListActive(ctx, tenantID)
}

// Add grants a role inside tenantID. Admin membership roles need a global
// platform admin; other roles need a tenant admin or owner.
func (s *Service) Add(ctx context.Context, tenantID uuid.UUID, input AddInput) (Member, error) {
	fields := FieldErrors{}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		fields["userId"] = append(fields["userId"], "user id is required")
	}
	role, err := platformauth.ParseRole(input.Role)
	if err != nil || !role.MembershipRole() {
		fields["role"] = append(fields["role"], fmt.Sprintf("unknown membership role %q", input.Role))
	}
	if len(fields) > 0 {
		return Member{}, &ValidationError{Fields: fields}
	}

	if !s.canManage(ctx, tenantID, role) {
		return Member{}, ErrForbidden
	}

	existing, err := s.repo.CountActive(ctx, tenantID, userID)
	if err != nil {
		return Member{}, err
	}
	if existing > 0 {
		return Member{}, ErrConflict
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	m, err := s.repo.Insert(ctx, tenantID, Member{UserID: userID, TenantID: tenantID, Role: role, Metadata: metadata})
	if err != nil {
		return Member{}, err
	}

	s.record(ctx, tenantID, map[string]any{"action": "member_added", "member_id": userID, "role": role.String()})
	return m, nil
}

// Remove deactivates the membership of userID. History is kept.
func (s *Service) Remove(ctx context.Context, tenantID uuid.UUID, userID string) error {
	if !s.canManage(ctx, tenantID, "") {
		return ErrForbidden
	}
	n, err := s.repo.Deactivate(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.record(ctx, tenantID, map[string]any{"action": "member_removed", "member_id": userID})
	return nil
}

func (s *Service) canManage(ctx context.Context, tenantID uuid.UUID, granting platformauth.Role) bool {
	if s.roles.ValidateUserRole(ctx, platformauth.RolePlatformAdmin, nil) {
		return true
	}
	if granting == platformauth.RoleSuperAdmin || granting == platformauth.RolePlatformAdmin {
		return false
	}
	return s.roles.ValidateUserRole(ctx, platformauth.RoleTenantAdmin, &tenantID) ||
		s.roles.ValidateUserRole(ctx, platformauth.RoleTenantOwner, &tenantID)
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, metadata map[string]any) {
	event := security.Event{Type: security.EventTenantConfigMutation, TenantID: &tenantID, Metadata: metadata}
	if creds, ok := platformauth.UserFromContext(ctx); ok && creds != nil {
		uid := creds.Id
		event.UserID = &uid
	}
	s.recorder.RecordEvent(ctx, event)
}
