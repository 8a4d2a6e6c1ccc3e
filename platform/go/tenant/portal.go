package tenant

import (
	"net"
	"strings"
)

// PortalKind classifies the surface a request arrived on.
type PortalKind string

const (
	PortalMarketing PortalKind = "marketing"
	PortalAdmin     PortalKind = "admin"
	PortalPartner   PortalKind = "partner"
	PortalManage    PortalKind = "manage"
	PortalTenant    PortalKind = "tenant"
)

// reservedLabels map subdomains to their fixed portals.
var reservedLabels = map[string]PortalKind{
	"www":     PortalMarketing,
	"admin":   PortalAdmin,
	"partner": PortalPartner,
	"manage":  PortalManage,
}

// Portal is the classification of a host.
type Portal struct {
	Kind PortalKind
	// Slug is set for tenant subdomains.
	Slug string
	// Domain is set for custom domains outside the base domain.
	Domain string
}

// ClassifyHost maps host (optionally with port) onto a portal relative to baseDomain.
// An empty host or the apex is the marketing site.
func ClassifyHost(host, baseDomain string) Portal {
	host = normalizeHost(host)
	baseDomain = normalizeHost(baseDomain)

	if host == "" || host == baseDomain || host == "localhost" || net.ParseIP(host) != nil {
		return Portal{Kind: PortalMarketing}
	}

	if baseDomain != "" && strings.HasSuffix(host, "."+baseDomain) {
		label := strings.TrimSuffix(host, "."+baseDomain)
		if kind, ok := reservedLabels[label]; ok {
			return Portal{Kind: kind}
		}
		if strings.Contains(label, ".") {
			// Nested subdomains are not tenant slugs.
			return Portal{Kind: PortalMarketing}
		}
		return Portal{Kind: PortalTenant, Slug: label}
	}

	if strings.HasSuffix(host, ".localhost") {
		label := strings.TrimSuffix(host, ".localhost")
		if kind, ok := reservedLabels[label]; ok {
			return Portal{Kind: kind}
		}
		return Portal{Kind: PortalTenant, Slug: label}
	}

	return Portal{Kind: PortalTenant, Domain: host}
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
