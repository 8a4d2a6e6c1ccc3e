package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAccess(t *testing.T) {
	t.Parallel()

	spec, err := LoadAccess()
	require.NoError(t, err)
	require.NotNil(t, spec.Paths.Find("/api/v1/tenants/{tenantId}/collections/{collection}/{id}"))
	require.Contains(t, spec.Components.SecuritySchemes, "bearerAuth")
}
