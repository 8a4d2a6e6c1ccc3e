package tenant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	tn := Tenant{ID: uuid.New(), Features: Features{FeatureAnalytics: true}}
	tn.ApplyDefaults()

	require.True(t, tn.Features.Enabled(FeatureAnalytics))
	require.False(t, tn.Features.Enabled(FeatureWebhooks))
	require.Len(t, tn.Features, len(KnownFeatures))
	require.Equal(t, DefaultBranding(), tn.Branding)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	logo := "https://cdn.example.com/logo.png"
	tn := Tenant{
		Features: Features{FeatureAnalytics: true},
		Branding: Branding{LogoURL: &logo},
		Security: SecuritySettings{AllowedOrigins: []string{"https://a.example.com"}},
	}

	clone := tn.Clone()
	clone.Features[FeatureAnalytics] = false
	*clone.Branding.LogoURL = "changed"
	clone.Security.AllowedOrigins[0] = "changed"

	require.True(t, tn.Features[FeatureAnalytics])
	require.Equal(t, "https://cdn.example.com/logo.png", *tn.Branding.LogoURL)
	require.Equal(t, "https://a.example.com", tn.Security.AllowedOrigins[0])
}

func TestStatusAndLimits(t *testing.T) {
	t.Parallel()

	require.True(t, StatusTrial.Accessible())
	require.False(t, StatusSuspended.Accessible())

	_, ok := ParseStatus("deleted")
	require.False(t, ok)

	require.True(t, Limit{Max: 10, Current: 10}.Reached(1))
	require.False(t, Limit{Max: 10, Current: 9}.Reached(1))
	require.False(t, Limit{Max: 0, Current: 1000}.Reached(1))
}
