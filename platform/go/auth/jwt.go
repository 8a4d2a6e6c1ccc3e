package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractJWTToken returns the bearer token from the Authorization header.
func ExtractJWTToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	// Case-insensitive prefix match.
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(bearerPrefix):]), true
}

// BearerHeader formats token for an outbound Authorization header.
func BearerHeader(token string) string {
	return bearerPrefix + token
}
