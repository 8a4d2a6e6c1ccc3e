package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

type limitsBody struct {
	Farmers        int64 `json:"farmers"`
	Dealers        int64 `json:"dealers"`
	Products       int64 `json:"products"`
	StorageMB      int64 `json:"storageMb"`
	APICallsPerDay int64 `json:"apiCallsPerDay"`
}

func (l limitsBody) toLimits() tenant.Limits {
	return tenant.Limits{
		Farmers:        tenant.Limit{Max: l.Farmers},
		Dealers:        tenant.Limit{Max: l.Dealers},
		Products:       tenant.Limit{Max: l.Products},
		StorageMB:      tenant.Limit{Max: l.StorageMB},
		APICallsPerDay: tenant.Limit{Max: l.APICallsPerDay},
	}
}

type securityBody struct {
	AllowedOrigins        []string `json:"allowedOrigins"`
	IPAllowlist           []string `json:"ipAllowlist"`
	SessionTimeoutSeconds int      `json:"sessionTimeoutSeconds"`
	RateLimitPerMinute    int      `json:"rateLimitPerMinute"`
}

func (s securityBody) toSettings() tenant.SecuritySettings {
	return tenant.SecuritySettings{
		AllowedOrigins:     s.AllowedOrigins,
		IPAllowlist:        s.IPAllowlist,
		SessionTimeout:     time.Duration(s.SessionTimeoutSeconds) * time.Second,
		RateLimitPerMinute: s.RateLimitPerMinute,
	}
}

func fromSettings(s tenant.SecuritySettings) securityBody {
	return securityBody{
		AllowedOrigins:        nonNil(s.AllowedOrigins),
		IPAllowlist:           nonNil(s.IPAllowlist),
		SessionTimeoutSeconds: int(s.SessionTimeout / time.Second),
		RateLimitPerMinute:    s.RateLimitPerMinute,
	}
}

type brandingBody struct {
	AppName        string  `json:"appName"`
	PrimaryColor   string  `json:"primaryColor"`
	SecondaryColor string  `json:"secondaryColor"`
	LogoURL        *string `json:"logoUrl,omitempty"`
}

func (b brandingBody) toBranding() tenant.Branding {
	return tenant.Branding{AppName: b.AppName, PrimaryColor: b.PrimaryColor, SecondaryColor: b.SecondaryColor, LogoURL: b.LogoURL}
}

type createTenantRequest struct {
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	CustomDomain *string         `json:"customDomain,omitempty"`
	Status       *string         `json:"status,omitempty"`
	PlanID       string          `json:"planId,omitempty"`
	Features     map[string]bool `json:"features,omitempty"`
	Limits       *limitsBody     `json:"limits,omitempty"`
	Security     *securityBody   `json:"security,omitempty"`
	Branding     *brandingBody   `json:"branding,omitempty"`
}

func (req createTenantRequest) toInput() service.CreateInput {
	input := service.CreateInput{
		Name:         req.Name,
		Slug:         req.Slug,
		CustomDomain: req.CustomDomain,
		PlanID:       req.PlanID,
		Features:     toFeatures(req.Features),
	}
	if req.Status != nil {
		status := tenant.Status(*req.Status)
		input.Status = &status
	}
	if req.Limits != nil {
		input.Limits = req.Limits.toLimits()
	}
	if req.Security != nil {
		input.Security = req.Security.toSettings()
	}
	if req.Branding != nil {
		b := req.Branding.toBranding()
		input.Branding = &b
	}
	return input
}

type updateTenantRequest struct {
	Name         *string       `json:"name,omitempty"`
	CustomDomain *string       `json:"customDomain,omitempty"`
	Status       *string       `json:"status,omitempty"`
	PlanID       *string       `json:"planId,omitempty"`
	Limits       *limitsBody   `json:"limits,omitempty"`
	Security     *securityBody `json:"security,omitempty"`
}

func (req updateTenantRequest) toInput() service.UpdateInput {
	input := service.UpdateInput{
		Name:         req.Name,
		CustomDomain: req.CustomDomain,
		PlanID:       req.PlanID,
	}
	if req.Status != nil {
		status := tenant.Status(*req.Status)
		input.Status = &status
	}
	if req.Limits != nil {
		l := req.Limits.toLimits()
		input.Limits = &l
	}
	if req.Security != nil {
		s := req.Security.toSettings()
		input.Security = &s
	}
	return input
}

type featuresRequest struct {
	Features map[string]bool `json:"features"`
}

type switchRequest struct {
	TenantID string `json:"tenantId"`
}

type tenantResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	CustomDomain *string         `json:"customDomain,omitempty"`
	Status       string          `json:"status"`
	Accessible   bool            `json:"accessible"`
	PlanID       string          `json:"planId"`
	Features     map[string]bool `json:"features"`
	Limits       tenant.Limits   `json:"limits"`
	Branding     brandingBody    `json:"branding"`
	Security     securityBody    `json:"security"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func toTenantResponse(t tenant.Tenant) tenantResponse {
	features := make(map[string]bool, len(t.Features))
	for f, on := range t.Features {
		features[string(f)] = on
	}
	return tenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		CustomDomain: t.CustomDomain,
		Status:       string(t.Status),
		Accessible:   t.Accessible(),
		PlanID:       t.PlanID,
		Features:     features,
		Limits:       t.Limits,
		Branding: brandingBody{
			AppName:        t.Branding.AppName,
			PrimaryColor:   t.Branding.PrimaryColor,
			SecondaryColor: t.Branding.SecondaryColor,
			LogoURL:        t.Branding.LogoURL,
		},
		Security:  fromSettings(t.Security),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type tenantListResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

type tenantSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Status     string    `json:"status"`
	Accessible bool      `json:"accessible"`
}

func toTenantSummary(t tenant.Tenant) tenantSummary {
	return tenantSummary{ID: t.ID, Name: t.Name, Slug: t.Slug, Status: string(t.Status), Accessible: t.Accessible()}
}

type tenantChoicesResponse struct {
	Items           []tenantSummary `json:"items"`
	DefaultTenantID *uuid.UUID      `json:"defaultTenantId,omitempty"`
}

type portalResponse struct {
	Kind   string `json:"kind"`
	Slug   string `json:"slug,omitempty"`
	Domain string `json:"domain,omitempty"`
}

type resolutionResponse struct {
	Portal    portalResponse  `json:"portal"`
	Tenant    *tenantResponse `json:"tenant"`
	Tenants   []tenantSummary `json:"tenants,omitempty"`
	FromCache bool            `json:"fromCache"`
}

type eventResponse struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	UserID    *string        `json:"userId,omitempty"`
	TenantID  *uuid.UUID     `json:"tenantId,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toEventResponse(e security.Event) eventResponse {
	md := e.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return eventResponse{
		ID:        e.ID,
		Type:      string(e.Type),
		UserID:    e.UserID,
		TenantID:  e.TenantID,
		Metadata:  md,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
}

type eventListResponse struct {
	Items []eventResponse `json:"items"`
}

func toFeatures(in map[string]bool) tenant.Features {
	if in == nil {
		return nil
	}
	out := make(tenant.Features, len(in))
	for k, v := range in {
		out[tenant.Feature(k)] = v
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
