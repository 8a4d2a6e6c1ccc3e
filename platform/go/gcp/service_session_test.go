package gcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

type fakeIssuer struct {
	customTokenFn func(ctx context.Context, uid string) (string, error)
}

func (f fakeIssuer) CustomToken(ctx context.Context, uid string) (string, error) {
	return f.customTokenFn(ctx, uid)
}

func TestServiceSessionRefresh(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	refresh := ServiceSessionRefresh(fakeIssuer{customTokenFn: func(ctx context.Context, uid string) (string, error) {
		return "custom-" + uid, nil
	}}, "functions-service", mock)

	session, err := refresh(context.Background(), platformauth.Session{Token: "stale"})
	require.NoError(t, err)
	require.Equal(t, "custom-functions-service", session.Token)
	require.Equal(t, "functions-service", session.User.Id)
	require.Equal(t, mock.Now().Add(time.Hour), session.ExpiresAt)
}

func TestServiceSessionRefreshIssuerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	refresh := ServiceSessionRefresh(fakeIssuer{customTokenFn: func(ctx context.Context, uid string) (string, error) {
		return "", boom
	}}, "functions-service", nil)

	_, err := refresh(context.Background(), platformauth.Session{})
	require.ErrorIs(t, err, boom)

	_, err = ServiceSessionRefresh(fakeIssuer{}, "", nil)(context.Background(), platformauth.Session{})
	require.Error(t, err)
}
