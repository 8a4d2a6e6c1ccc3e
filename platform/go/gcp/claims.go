package gcp

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

// ClaimsClient is the subset of the Firebase Auth client used to manage custom claims.
type ClaimsClient interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
}

// ClaimsSync mirrors admin grants into Firebase custom claims so new ID tokens
// carry the adminRole hint. The registry in Postgres stays authoritative.
type ClaimsSync struct {
	client ClaimsClient
}

// NewClaimsSync builds a ClaimsSync.
func NewClaimsSync(client ClaimsClient) *ClaimsSync {
	if client == nil {
		panic("gcp: claims client is required")
	}
	return &ClaimsSync{client: client}
}

// SetAdminRole writes role into the user's custom claims, keeping unrelated
// claims. A nil role removes the claim.
func (s *ClaimsSync) SetAdminRole(ctx context.Context, uid string, role *platformauth.Role) error {
	user, err := s.client.GetUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("get firebase user %s: %w", uid, err)
	}

	claims := make(map[string]interface{}, len(user.CustomClaims)+1)
	for k, v := range user.CustomClaims {
		claims[k] = v
	}
	delete(claims, "isAdmin")
	if role == nil {
		delete(claims, "adminRole")
	} else {
		if !role.IsAdmin() {
			return fmt.Errorf("role %q is not an admin role", *role)
		}
		claims["adminRole"] = string(*role)
	}

	if err := s.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return fmt.Errorf("set custom claims for %s: %w", uid, err)
	}
	return nil
}
