package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth/devtoken"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/gcp"
)

const devServiceProject = "palmyra-dev"

// buildServiceSession returns the session outbound function calls carry.
// FUNCTIONS_SERVICE_TOKEN seeds it; an empty or rejected token is replaced
// by a Firebase custom token, or an unsigned token with AUTH_PROVIDER=dev.
func buildServiceSession(ctx context.Context, cfg config, clk clock.Clock, logger *zap.Logger) (*platformauth.SessionStore, error) {
	var refresh platformauth.RefreshFunc
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, gcp.OptionsFromEnv())
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		refresh = gcp.ServiceSessionRefresh(fbAuth, cfg.FunctionsServiceUser, clk)
	case "dev":
		refresh = devServiceRefresh(cfg.FunctionsServiceUser, clk)
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", cfg.AuthProvider)
	}

	session := platformauth.NewSessionStore(platformauth.SessionStoreConfig{
		Initial: platformauth.Session{
			Token: cfg.FunctionsServiceToken,
			User:  &platformauth.UserCredentials{Id: cfg.FunctionsServiceUser},
		},
		Refresh: refresh,
		Clock:   clk,
	})
	if cfg.FunctionsServiceToken == "" {
		logger.Info("no FUNCTIONS_SERVICE_TOKEN; the first function call mints one", zap.String("service_user", cfg.FunctionsServiceUser))
	}
	return session, nil
}

func devServiceRefresh(uid string, clk clock.Clock) platformauth.RefreshFunc {
	return func(ctx context.Context, current platformauth.Session) (platformauth.Session, error) {
		now := clk.Now()
		token, err := devtoken.BuildUnsignedFirebaseToken(devtoken.Params{
			ProjectID: devServiceProject,
			UserID:    uid,
			Email:     uid + "@service.local",
		}, now)
		if err != nil {
			return platformauth.Session{}, fmt.Errorf("mint dev service token: %w", err)
		}
		return platformauth.Session{
			Token:     token,
			User:      &platformauth.UserCredentials{Id: uid},
			ExpiresAt: now.Add(devtoken.DefaultExpiry),
		}, nil
	}
}
