package security

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a security event. The set below is the known vocabulary;
// sinks accept any value.
type EventType string

const (
	EventTenantAccessDenied   EventType = "tenant_access_denied"
	EventTenantValidationErr  EventType = "tenant_validation_error"
	EventRoleValidationErr    EventType = "role_validation_error"
	EventAPIAccessDenied      EventType = "api_access_denied"
	EventSuspiciousActivity   EventType = "suspicious_activity_detected"
	EventTenantSwitchSuccess  EventType = "tenant_switch_success"
	EventTenantSwitchDenied   EventType = "tenant_switch_denied"
	EventDataAccess           EventType = "data_access"
	EventDataAccessDenied     EventType = "data_access_denied"
	EventIPNotAllowed         EventType = "ip_not_allowed"
	EventRateLimitExceeded    EventType = "rate_limit_exceeded"
	EventUserBlocked          EventType = "user_blocked"
	EventTenantAccessGranted  EventType = "tenant_access_granted"
	EventFunctionInvoked      EventType = "function_invoked"
	EventAuthRefreshFailed    EventType = "auth_refresh_failed"
	EventTenantConfigMutation EventType = "tenant_config_updated"
)

// Event is an immutable audit record.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	UserID    *string
	TenantID  *uuid.UUID
	Metadata  map[string]any
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// Sink is the append-only store of security events.
type Sink interface {
	Record(ctx context.Context, event Event) error
	// CountSince counts events of eventType for userID created at or after since.
	CountSince(ctx context.Context, userID string, eventType EventType, since time.Time) (int, error)
}

// DefaultEventPageSize bounds event listings when no limit is given.
const DefaultEventPageSize = 50

// maxEventPageSize caps event listings.
const maxEventPageSize = 500

// EventFilter narrows an event listing. Nil fields match everything.
type EventFilter struct {
	TenantID *uuid.UUID
	UserID   *string
	Type     *EventType
	Limit    int
}

// PageSize returns Limit clamped to (0, 500], defaulting to DefaultEventPageSize.
func (f EventFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > maxEventPageSize {
		return DefaultEventPageSize
	}
	return f.Limit
}

// Matches reports whether e passes the filter.
func (f EventFilter) Matches(e Event) bool {
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.TenantID != nil && (e.TenantID == nil || *e.TenantID != *f.TenantID) {
		return false
	}
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	return true
}
