package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_PROVIDER", "dev")
	t.Setenv("DATABASE_URL", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "3000", cfg.Port)
	require.Equal(t, "memory", cfg.CacheBackend)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, 1000, cfg.RateLimitMax)
	require.True(t, cfg.inMemory())
	require.Equal(t, 10, cfg.SuspiciousThreshold)
	require.Equal(t, 5*time.Minute, cfg.SuspiciousWindow)
	require.False(t, cfg.BlockSuspicious)
	require.Equal(t, 3, cfg.Retries)
	require.Equal(t, "functions-service", cfg.FunctionsServiceUser)
}

func TestLoadConfigRejectsInvalidCombinations(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "firebase without database", env: map[string]string{"AUTH_PROVIDER": "firebase", "DATABASE_URL": ""}},
		{name: "unknown auth", env: map[string]string{"AUTH_PROVIDER": "saml"}},
		{name: "unknown cache", env: map[string]string{"AUTH_PROVIDER": "dev", "CACHE_BACKEND": "memcached"}},
		{name: "functions without service user", env: map[string]string{"AUTH_PROVIDER": "dev", "FUNCTIONS_BASE_URL": "http://functions.local", "FUNCTIONS_SERVICE_USER": ""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}
