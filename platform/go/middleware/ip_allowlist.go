package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-agri-admin/platform/go/logging"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// EventRecorder receives audit events. Implemented by *security.Validator.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event security.Event)
}

// IPAllowlist rejects requests whose client IP is not on the resolved
// tenant's allowlist. Entries are single addresses or CIDR ranges; an empty
// list admits everyone. Rejections record ip_not_allowed.
func IPAllowlist(recorder EventRecorder) func(http.Handler) http.Handler {
	if recorder == nil {
		panic("ip allowlist: event recorder is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, ok := tenant.FromContext(r.Context())
			if !ok || len(t.Security.IPAllowlist) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIP(r)
			if ipAllowed(t.Security.IPAllowlist, clientIP) {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := t.ID
			recorder.RecordEvent(r.Context(), security.Event{
				Type:      security.EventIPNotAllowed,
				TenantID:  &tenantID,
				IPAddress: clientIP,
				Metadata:  map[string]any{"path": r.URL.Path},
			})
			if logger := platformlogging.FromRequest(r, nil); logger != nil {
				logger.Info("client ip not allowed", zap.String("client_ip", clientIP))
			}
			http.Error(w, "client ip not allowed", http.StatusForbidden)
		})
	}
}

func ipAllowed(entries []string, raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}
