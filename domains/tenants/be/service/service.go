package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
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

func (v *ValidationError) add(field, message string) {
	if v.Fields == nil {
		v.Fields = FieldErrors{}
	}
	v.Fields[field] = append(v.Fields[field], message)
}

func (v *ValidationError) orNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflictSlug = errors.New("tenant slug or domain already exists")
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *tenant.Status
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []tenant.Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// CreateInput represents the request to create a tenant.
type CreateInput struct {
	Name         string
	Slug         string
	CustomDomain *string
	Status       *tenant.Status
	PlanID       string
	Features     tenant.Features
	Limits       tenant.Limits
	Security     tenant.SecuritySettings
	Branding     *tenant.Branding
}

// UpdateInput represents mutable base fields of a tenant. Nil fields are kept.
type UpdateInput struct {
	Name         *string
	CustomDomain *string
	Status       *tenant.Status
	PlanID       *string
	Limits       *tenant.Limits
	Security     *tenant.SecuritySettings
}

// Repository abstracts persistence.
type Repository interface {
	List(ctx context.Context) ([]tenant.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	Save(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error)
	SetFeatures(ctx context.Context, id uuid.UUID, f tenant.Features) (tenant.Tenant, error)
}

// Invalidator evicts cached tenant snapshots. Implemented by *tenant.Resolver.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID)
}

// EventRecorder records security events. Implemented by *security.Validator.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event security.Event)
}

// Service provides tenant registry operations.
type Service struct {
	repo        Repository
	invalidator Invalidator
	recorder    EventRecorder
}

// New constructs a Service with required dependencies.
func New(repo Repository, invalidator Invalidator, recorder EventRecorder) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if invalidator == nil {
		panic("tenant cache invalidator is required")
	}
	if recorder == nil {
		panic("security event recorder is required")
	}
	return &Service{repo: repo, invalidator: invalidator, recorder: recorder}
}

// List tenants with an optional status filter, sorted by name.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return ListResult{}, err
	}

	items := make([]tenant.Tenant, 0, len(all))
	for _, t := range all {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		items = append(items, t)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return ListResult{
		Tenants:    items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new tenant. Status defaults to trial.
func (s *Service) Create(ctx context.Context, input CreateInput) (tenant.Tenant, error) {
	verr := &ValidationError{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		verr.add("name", "name is required")
	}
	slug, err := tenant.NormalizeSlug(input.Slug)
	if err != nil {
		verr.add("slug", err.Error())
	}
	domain := normalizeDomain(verr, input.CustomDomain)

	status := tenant.StatusTrial
	if input.Status != nil {
		status = *input.Status
		if _, ok := tenant.ParseStatus(string(status)); !ok {
			verr.add("status", fmt.Sprintf("unknown status %q", status))
		}
	}

	validateFeatures(verr, input.Features)
	validateLimits(verr, input.Limits)
	validateSecurity(verr, input.Security)

	branding := tenant.DefaultBranding()
	if input.Branding != nil {
		validateBranding(verr, *input.Branding)
		branding = *input.Branding
	}

	if err := verr.orNil(); err != nil {
		return tenant.Tenant{}, err
	}

	features := tenant.DefaultFeatures()
	for f, on := range input.Features {
		features[f] = on
	}

	created, err := s.repo.Create(ctx, tenant.Tenant{
		ID:           uuid.New(),
		Name:         name,
		Slug:         slug,
		CustomDomain: domain,
		Status:       status,
		PlanID:       strings.TrimSpace(input.PlanID),
		Features:     features,
		Limits:       input.Limits,
		Branding:     branding,
		Security:     input.Security,
	})
	if err != nil {
		return tenant.Tenant{}, err
	}

	s.recordMutation(ctx, created.ID, "create", []string{"tenant"})
	return created, nil
}

// Update modifies mutable base fields of a tenant.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (tenant.Tenant, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Tenant{}, err
	}

	verr := &ValidationError{}
	next := current
	var changed []string

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			verr.add("name", "name is required")
		}
		next.Name = name
		changed = append(changed, "name")
	}
	if input.CustomDomain != nil {
		if strings.TrimSpace(*input.CustomDomain) == "" {
			next.CustomDomain = nil
		} else {
			next.CustomDomain = normalizeDomain(verr, input.CustomDomain)
		}
		changed = append(changed, "custom_domain")
	}
	if input.Status != nil {
		if _, ok := tenant.ParseStatus(string(*input.Status)); !ok {
			verr.add("status", fmt.Sprintf("unknown status %q", *input.Status))
		}
		next.Status = *input.Status
		changed = append(changed, "status")
	}
	if input.PlanID != nil {
		next.PlanID = strings.TrimSpace(*input.PlanID)
		changed = append(changed, "plan_id")
	}
	if input.Limits != nil {
		validateLimits(verr, *input.Limits)
		next.Limits = *input.Limits
		changed = append(changed, "limits")
	}
	if input.Security != nil {
		validateSecurity(verr, *input.Security)
		next.Security = *input.Security
		changed = append(changed, "security")
	}

	if err := verr.orNil(); err != nil {
		return tenant.Tenant{}, err
	}
	if len(changed) == 0 {
		return current, nil
	}

	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		return tenant.Tenant{}, err
	}
	s.invalidator.Invalidate(ctx, id)
	s.recordMutation(ctx, id, "update", changed)
	return saved, nil
}

// SetBranding replaces the white-label configuration of a tenant.
func (s *Service) SetBranding(ctx context.Context, id uuid.UUID, b tenant.Branding) (tenant.Tenant, error) {
	verr := &ValidationError{}
	validateBranding(verr, b)
	if err := verr.orNil(); err != nil {
		return tenant.Tenant{}, err
	}

	updated, err := s.repo.SetBranding(ctx, id, b)
	if err != nil {
		return tenant.Tenant{}, err
	}
	s.invalidator.Invalidate(ctx, id)
	s.recordMutation(ctx, id, "branding", []string{"branding"})
	return updated, nil
}

// SetFeatures toggles features of a tenant. Features not named are unchanged.
func (s *Service) SetFeatures(ctx context.Context, id uuid.UUID, features tenant.Features) (tenant.Tenant, error) {
	verr := &ValidationError{}
	if len(features) == 0 {
		verr.add("features", "at least one feature is required")
	}
	validateFeatures(verr, features)
	if err := verr.orNil(); err != nil {
		return tenant.Tenant{}, err
	}

	updated, err := s.repo.SetFeatures(ctx, id, features)
	if err != nil {
		return tenant.Tenant{}, err
	}
	s.invalidator.Invalidate(ctx, id)

	names := make([]string, 0, len(features))
	for f := range features {
		names = append(names, string(f))
	}
	sort.Strings(names)
	s.recordMutation(ctx, id, "features", names)
	return updated, nil
}

func (s *Service) recordMutation(ctx context.Context, id uuid.UUID, action string, fields []string) {
	event := security.Event{
		Type:     security.EventTenantConfigMutation,
		TenantID: &id,
		Metadata: map[string]any{
			"action": action,
			"fields": fields,
		},
		CreatedAt: time.Now().UTC(),
	}
	if creds, ok := platformauth.UserFromContext(ctx); ok && creds != nil {
		uid := creds.Id
		event.UserID = &uid
	}
	s.recorder.RecordEvent(ctx, event)
}

func normalizeDomain(verr *ValidationError, raw *string) *string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	domain, err := tenant.NormalizeDomain(*raw)
	if err != nil {
		verr.add("customDomain", err.Error())
		return nil
	}
	return &domain
}

func validateFeatures(verr *ValidationError, features tenant.Features) {
	known := make(map[tenant.Feature]struct{}, len(tenant.KnownFeatures))
	for _, f := range tenant.KnownFeatures {
		known[f] = struct{}{}
	}
	for f := range features {
		if _, ok := known[f]; !ok {
			verr.add("features", fmt.Sprintf("unknown feature %q", f))
		}
	}
}

func validateLimits(verr *ValidationError, l tenant.Limits) {
	for field, max := range map[string]int64{
		"limits.farmers":        l.Farmers.Max,
		"limits.dealers":        l.Dealers.Max,
		"limits.products":       l.Products.Max,
		"limits.storageMb":      l.StorageMB.Max,
		"limits.apiCallsPerDay": l.APICallsPerDay.Max,
	} {
		if max < 0 {
			verr.add(field, "must not be negative")
		}
	}
}

func validateSecurity(verr *ValidationError, sec tenant.SecuritySettings) {
	for _, entry := range sec.IPAllowlist {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			verr.add("security.ipAllowlist", fmt.Sprintf("invalid ip or cidr %q", entry))
		}
	}
	for _, origin := range sec.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			verr.add("security.allowedOrigins", fmt.Sprintf("invalid origin %q", origin))
		}
	}
	if sec.SessionTimeout < 0 {
		verr.add("security.sessionTimeout", "must not be negative")
	}
	if sec.RateLimitPerMinute < 0 {
		verr.add("security.rateLimitPerMinute", "must not be negative")
	}
}

func validateBranding(verr *ValidationError, b tenant.Branding) {
	if strings.TrimSpace(b.AppName) == "" {
		verr.add("branding.appName", "app name is required")
	}
	if !colorPattern.MatchString(b.PrimaryColor) {
		verr.add("branding.primaryColor", "must be a #RRGGBB color")
	}
	if !colorPattern.MatchString(b.SecondaryColor) {
		verr.add("branding.secondaryColor", "must be a #RRGGBB color")
	}
	if b.LogoURL != nil && !strings.HasPrefix(*b.LogoURL, "https://") {
		verr.add("branding.logoUrl", "must be an https url")
	}
}
