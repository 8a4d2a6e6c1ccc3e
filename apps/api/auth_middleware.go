package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/gcp"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

const tenantClaimLookupTimeout = 2 * time.Second

// slugLookup maps the external tenant claim (a slug) to the tenant id.
type slugLookup interface {
	BySlug(ctx context.Context, slug string) (tenant.Tenant, error)
}

// buildAuthMiddleware constructs the JWT middleware and maps slug tenant claims to internal ids.
func buildAuthMiddleware(ctx context.Context, cfg config, tenants slugLookup, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, gcp.OptionsFromEnv())
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", cfg.AuthProvider)
	}

	return platformauth.JWT(verify, tenantClaimExtractor(tenants, logger)), nil
}

// tenantClaimExtractor keeps uuid tenant claims and resolves slugs through
// the registry. An unknown slug drops the claim instead of rejecting the token.
func tenantClaimExtractor(tenants slugLookup, logger *zap.Logger) platformauth.ExtractFunc {
	return func(claims map[string]interface{}) (*platformauth.UserCredentials, error) {
		creds, err := platformauth.DefaultCredentialExtractor(claims)
		if err != nil {
			return nil, err
		}
		if creds.TenantID == nil || *creds.TenantID == "" {
			creds.TenantID = nil
			return creds, nil
		}

		if tid, parseErr := uuid.Parse(*creds.TenantID); parseErr == nil {
			idStr := tid.String()
			creds.TenantID = &idStr
			return creds, nil
		}

		lookupCtx, cancel := context.WithTimeout(context.Background(), tenantClaimLookupTimeout)
		defer cancel()
		t, lookupErr := tenants.BySlug(lookupCtx, *creds.TenantID)
		if lookupErr != nil {
			logger.Debug("tenant claim not mapped", zap.String("claim", *creds.TenantID), zap.String("user_id", creds.Id), zap.Error(lookupErr))
			creds.TenantID = nil
			return creds, nil
		}
		idStr := t.ID.String()
		creds.TenantID = &idStr
		return creds, nil
	}
}
