package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates s; unknown values return false.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusTrial, StatusActive, StatusSuspended, StatusExpired, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// Accessible reports whether members may work inside a tenant in this state.
func (s Status) Accessible() bool {
	return s == StatusTrial || s == StatusActive
}

// Feature names a capability that can be toggled per tenant.
type Feature string

const (
	FeatureFarmerManagement Feature = "farmer_management"
	FeatureDealerNetwork    Feature = "dealer_network"
	FeatureProductCatalog   Feature = "product_catalog"
	FeatureAnalytics        Feature = "analytics"
	FeatureWhiteLabel       Feature = "white_label"
	FeatureAPIAccess        Feature = "api_access"
	FeatureWebhooks         Feature = "webhooks"
	FeatureCustomDomain     Feature = "custom_domain"
	FeatureMobileApp        Feature = "mobile_app"
)

// KnownFeatures lists every feature in display order.
var KnownFeatures = []Feature{
	FeatureFarmerManagement,
	FeatureDealerNetwork,
	FeatureProductCatalog,
	FeatureAnalytics,
	FeatureWhiteLabel,
	FeatureAPIAccess,
	FeatureWebhooks,
	FeatureCustomDomain,
	FeatureMobileApp,
}

// Features is the per-tenant flag set. Missing entries are disabled.
type Features map[Feature]bool

// Enabled reports whether f is on.
func (f Features) Enabled(feature Feature) bool {
	return f[feature]
}

// DefaultFeatures returns every known feature set to false.
func DefaultFeatures() Features {
	out := make(Features, len(KnownFeatures))
	for _, f := range KnownFeatures {
		out[f] = false
	}
	return out
}

// Limit pairs a cap with the current usage. Max 0 means unlimited.
type Limit struct {
	Max     int64 `json:"max"`
	Current int64 `json:"current"`
}

// Reached reports whether adding n more would exceed the cap.
func (l Limit) Reached(n int64) bool {
	return l.Max > 0 && l.Current+n > l.Max
}

// Limits are the usage caps of a tenant.
type Limits struct {
	Farmers        Limit `json:"farmers"`
	Dealers        Limit `json:"dealers"`
	Products       Limit `json:"products"`
	StorageMB      Limit `json:"storageMb"`
	APICallsPerDay Limit `json:"apiCallsPerDay"`
}

// Branding is the white-label configuration of a tenant.
type Branding struct {
	AppName        string  `json:"appName"`
	PrimaryColor   string  `json:"primaryColor"`
	SecondaryColor string  `json:"secondaryColor"`
	LogoURL        *string `json:"logoUrl,omitempty"`
}

// DefaultBranding is applied when a tenant has no branding record.
func DefaultBranding() Branding {
	return Branding{
		AppName:        "Palmyra Agri",
		PrimaryColor:   "#2E7D32",
		SecondaryColor: "#FFC107",
	}
}

// SecuritySettings are the per-tenant access controls.
type SecuritySettings struct {
	AllowedOrigins     []string      `json:"allowedOrigins,omitempty"`
	IPAllowlist        []string      `json:"ipAllowlist,omitempty"`
	SessionTimeout     time.Duration `json:"sessionTimeout,omitempty"`
	RateLimitPerMinute int           `json:"rateLimitPerMinute,omitempty"`
}

// Tenant is a fully populated tenant snapshot.
type Tenant struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Slug         string           `json:"slug"`
	CustomDomain *string          `json:"customDomain,omitempty"`
	Status       Status           `json:"status"`
	PlanID       string           `json:"planId"`
	Features     Features         `json:"features"`
	Limits       Limits           `json:"limits"`
	Branding     Branding         `json:"branding"`
	Security     SecuritySettings `json:"security"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Accessible reports whether the tenant's status allows regular use.
func (t Tenant) Accessible() bool {
	return t.Status.Accessible()
}

// Clone returns a deep copy so cached snapshots cannot be mutated by callers.
func (t Tenant) Clone() Tenant {
	out := t
	if t.CustomDomain != nil {
		domain := *t.CustomDomain
		out.CustomDomain = &domain
	}
	if t.Features != nil {
		out.Features = make(Features, len(t.Features))
		for k, v := range t.Features {
			out.Features[k] = v
		}
	}
	if t.Branding.LogoURL != nil {
		logo := *t.Branding.LogoURL
		out.Branding.LogoURL = &logo
	}
	out.Security.AllowedOrigins = append([]string(nil), t.Security.AllowedOrigins...)
	out.Security.IPAllowlist = append([]string(nil), t.Security.IPAllowlist...)
	return out
}

// ApplyDefaults fills absent feature and branding data with the documented fallbacks.
func (t *Tenant) ApplyDefaults() {
	features := DefaultFeatures()
	for k, v := range t.Features {
		features[k] = v
	}
	t.Features = features

	def := DefaultBranding()
	if t.Branding.AppName == "" {
		t.Branding.AppName = def.AppName
	}
	if t.Branding.PrimaryColor == "" {
		t.Branding.PrimaryColor = def.PrimaryColor
	}
	if t.Branding.SecondaryColor == "" {
		t.Branding.SecondaryColor = def.SecondaryColor
	}
}
