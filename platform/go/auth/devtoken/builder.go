package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params captures the Firebase-compatible claims used to mint an unsigned JWT
// for local and CI environments. No environment variables are read.
type Params struct {
	ProjectID              string        // Firebase project id; used for aud and iss
	Tenant                 string        // optional tenant id, emitted as tenantId and firebase.tenant
	UserID                 string        // user_id/sub/uid (required)
	Email                  string        // email claim (required)
	Name                   string        // display name
	EmailVerified          bool          // email_verified claim
	AdminRole              string        // optional adminRole claim: super_admin, platform_admin or admin
	TenantRoles            []string      // optional tenant-scoped roles array
	FirebaseSignInProvider string        // firebase.sign_in_provider; default "password"
	ExpiresIn              time.Duration // relative expiry; default 1h if zero
	Audience               string        // defaults to ProjectID
	Issuer                 string        // defaults to https://securetoken.google.com/<projectId>
}

// DefaultExpiry is the token lifetime used when Params.ExpiresIn is zero.
const DefaultExpiry = time.Hour

var adminRoles = map[string]struct{}{
	"super_admin":    {},
	"platform_admin": {},
	"admin":          {},
}

// BuildUnsignedFirebaseToken returns a JWT string with alg "none" and no signature.
// The payload mirrors the Firebase ID token shape so it flows through the
// auth middleware when AUTH_PROVIDER=dev.
func BuildUnsignedFirebaseToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.ProjectID) == "" {
		return "", errors.New("projectID is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}
	if p.AdminRole != "" {
		if _, ok := adminRoles[p.AdminRole]; !ok {
			return "", fmt.Errorf("adminRole %q is not an admin role", p.AdminRole)
		}
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = DefaultExpiry
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}

	audience := p.Audience
	if strings.TrimSpace(audience) == "" {
		audience = p.ProjectID
	}

	signInProvider := p.FirebaseSignInProvider
	if strings.TrimSpace(signInProvider) == "" {
		signInProvider = "password"
	}

	firebaseClaim := map[string]interface{}{
		"identities":       map[string]interface{}{"email": []string{p.Email}},
		"sign_in_provider": signInProvider,
	}

	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            audience,
		"auth_time":      now.Unix(),
		"user_id":        p.UserID,
		"sub":            p.UserID,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"name":           p.Name,
		"firebase":       firebaseClaim,
	}

	if p.Tenant != "" {
		payload["tenantId"] = p.Tenant
		firebaseClaim["tenant"] = p.Tenant
	}
	if p.AdminRole != "" {
		payload["adminRole"] = p.AdminRole
	}
	if len(p.TenantRoles) > 0 {
		payload["tenantRoles"] = p.TenantRoles
	}

	headerSegment, err := encodeSegment(map[string]interface{}{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s.", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
