package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

// customTokenTTL is the lifetime Firebase gives custom tokens.
const customTokenTTL = time.Hour

// TokenIssuer mints Firebase custom tokens. Implemented by *auth.Client.
type TokenIssuer interface {
	CustomToken(ctx context.Context, uid string) (string, error)
}

// ServiceSessionRefresh issues a fresh custom token for the service account
// uid each time the outbound session is rejected.
func ServiceSessionRefresh(issuer TokenIssuer, uid string, clk clock.Clock) platformauth.RefreshFunc {
	if issuer == nil {
		panic("gcp: token issuer is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	return func(ctx context.Context, current platformauth.Session) (platformauth.Session, error) {
		if uid == "" {
			return platformauth.Session{}, errors.New("service uid is required")
		}
		token, err := issuer.CustomToken(ctx, uid)
		if err != nil {
			return platformauth.Session{}, fmt.Errorf("mint custom token for %s: %w", uid, err)
		}
		user := current.User
		if user == nil {
			user = &platformauth.UserCredentials{Id: uid}
		}
		return platformauth.Session{
			Token:     token,
			User:      user,
			ExpiresAt: clk.Now().Add(customTokenTTL),
		}, nil
	}
}
