package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyHost(t *testing.T) {
	t.Parallel()

	const base = "palmyra-agri.com"

	tests := []struct {
		host string
		want Portal
	}{
		{host: "", want: Portal{Kind: PortalMarketing}},
		{host: "palmyra-agri.com", want: Portal{Kind: PortalMarketing}},
		{host: "www.palmyra-agri.com", want: Portal{Kind: PortalMarketing}},
		{host: "admin.palmyra-agri.com", want: Portal{Kind: PortalAdmin}},
		{host: "Partner.Palmyra-Agri.com:8443", want: Portal{Kind: PortalPartner}},
		{host: "manage.palmyra-agri.com", want: Portal{Kind: PortalManage}},
		{host: "green-valley.palmyra-agri.com", want: Portal{Kind: PortalTenant, Slug: "green-valley"}},
		{host: "a.b.palmyra-agri.com", want: Portal{Kind: PortalMarketing}},
		{host: "farms.example.org", want: Portal{Kind: PortalTenant, Domain: "farms.example.org"}},
		{host: "acme.localhost:3000", want: Portal{Kind: PortalTenant, Slug: "acme"}},
		{host: "127.0.0.1:8080", want: Portal{Kind: PortalMarketing}},
	}

	for _, tt := range tests {
		require.Equalf(t, tt.want, ClassifyHost(tt.host, base), "host %q", tt.host)
	}
}
