package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/requesttrace"
)

const (
	// DefaultSuspiciousThreshold is the event count above which activity is flagged.
	DefaultSuspiciousThreshold = 10
	// DefaultSuspiciousWindow is the trailing window counted by DetectSuspiciousActivity.
	DefaultSuspiciousWindow = 5 * time.Minute
)

const suspiciousWarning = "Unusual activity was detected on your account. Further attempts may be reviewed by an administrator."

// Config wires a Validator.
type Config struct {
	Memberships MembershipReader
	Admins      AdminRoleReader
	Sink        Sink
	// Session resolves the acting user when no explicit user id is given.
	// Defaults to the credentials stored on the request context.
	Session auth.SessionProvider
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	SuspiciousThreshold int
	SuspiciousWindow    time.Duration
	// BlockSuspicious turns flagged activity into a temporary block of the
	// user for one window. Off by default.
	BlockSuspicious bool
	// RecordGrants emits tenant_access_granted on successful checks.
	RecordGrants bool
}

// Validator decides whether a user may act on a tenant and records every decision.
type Validator struct {
	memberships MembershipReader
	admins      AdminRoleReader
	sink        Sink
	session     auth.SessionProvider
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *metrics.Metrics

	threshold    int
	window       time.Duration
	block        bool
	recordGrants bool

	mu      sync.Mutex
	blocked map[string]time.Time
}

// TenantAccessResult is the outcome of ValidateTenantAccess.
type TenantAccessResult struct {
	IsValid  bool
	TenantID uuid.UUID
	UserID   string
	Role     auth.Role
	Reason   string
	Error    string
}

// Err converts a denied result into an *AccessDeniedError.
func (r TenantAccessResult) Err() error {
	if r.IsValid {
		return nil
	}
	id := r.TenantID
	return &AccessDeniedError{TenantID: &id, UserID: r.UserID, Reason: r.Reason}
}

// APIAccessResult is the outcome of ValidateAPIAccess.
type APIAccessResult struct {
	Allowed  bool
	User     *auth.UserCredentials
	TenantID *uuid.UUID
	Reason   string
}

// SuspicionResult is the outcome of DetectSuspiciousActivity.
type SuspicionResult struct {
	Suspicious   bool
	Count        int
	Warning      string
	BlockedUntil *time.Time
}

// NewValidator builds a Validator. Memberships, Admins and Sink are required.
func NewValidator(cfg Config) *Validator {
	if cfg.Memberships == nil {
		panic("security: membership reader is required")
	}
	if cfg.Admins == nil {
		panic("security: admin role reader is required")
	}
	if cfg.Sink == nil {
		panic("security: event sink is required")
	}

	v := &Validator{
		memberships:  cfg.Memberships,
		admins:       cfg.Admins,
		sink:         cfg.Sink,
		session:      cfg.Session,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		threshold:    cfg.SuspiciousThreshold,
		window:       cfg.SuspiciousWindow,
		block:        cfg.BlockSuspicious,
		recordGrants: cfg.RecordGrants,
		blocked:      make(map[string]time.Time),
	}
	if v.session == nil {
		v.session = auth.RequestSession{}
	}
	if v.clock == nil {
		v.clock = clock.New()
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if v.threshold <= 0 {
		v.threshold = DefaultSuspiciousThreshold
	}
	if v.window <= 0 {
		v.window = DefaultSuspiciousWindow
	}
	return v
}

// ValidateTenantAccess checks that the acting user may access tenantID. When
// userID is nil the user comes from the session. Global super admins are
// granted unconditionally; everyone else needs an active membership. Every
// denial and error records a security event and fails closed.
func (v *Validator) ValidateTenantAccess(ctx context.Context, tenantID uuid.UUID, userID *string) TenantAccessResult {
	uid, ok := v.actingUser(ctx, userID)
	if !ok {
		return v.denyTenant(ctx, tenantID, "", ReasonNoUser, "authentication required")
	}

	if until, blocked := v.blockedUntil(uid); blocked {
		v.RecordEvent(ctx, Event{
			Type:     EventUserBlocked,
			UserID:   &uid,
			TenantID: &tenantID,
			Metadata: map[string]any{"blocked_until": until.UTC().Format(time.RFC3339)},
		})
		return v.denyTenant(ctx, tenantID, uid, ReasonUserBlocked, "user is temporarily blocked")
	}

	role, isAdmin, err := v.admins.AdminRole(ctx, uid)
	if err != nil {
		return v.failTenant(ctx, tenantID, uid, fmt.Errorf("resolve admin role: %w", err))
	}
	if isAdmin && role == auth.RoleSuperAdmin {
		return v.grantTenant(ctx, tenantID, uid, role)
	}

	membership, found, err := v.memberships.ActiveMembership(ctx, uid, tenantID)
	if err != nil {
		return v.failTenant(ctx, tenantID, uid, fmt.Errorf("lookup membership: %w", err))
	}
	if !found || !membership.Active {
		return v.denyTenant(ctx, tenantID, uid, ReasonNotMember, "user is not an active member of this tenant")
	}

	return v.grantTenant(ctx, tenantID, uid, membership.Role)
}

// ValidateUserRole reports whether the session user holds required. A global
// admin role satisfies an admin-level requirement when it ranks at or above
// it. Otherwise, when tenantID is given, the tenant-scoped role must equal
// required. Errors resolve to false.
func (v *Validator) ValidateUserRole(ctx context.Context, required auth.Role, tenantID *uuid.UUID) bool {
	uid, ok := v.actingUser(ctx, nil)
	if !ok {
		v.metrics.ObserveAccess("user_role", false)
		return false
	}

	allowed, err := v.hasRole(ctx, uid, required, tenantID)
	if err != nil {
		v.logger.Warn("role validation failed",
			zap.String("user_id", uid),
			zap.String("required_role", required.String()),
			zap.Error(err),
		)
		v.RecordEvent(ctx, Event{
			Type:     EventRoleValidationErr,
			UserID:   &uid,
			TenantID: tenantID,
			Metadata: map[string]any{"required_role": required.String(), "error": err.Error()},
		})
		allowed = false
	}

	v.metrics.ObserveAccess("user_role", allowed)
	return allowed
}

func (v *Validator) hasRole(ctx context.Context, uid string, required auth.Role, tenantID *uuid.UUID) (bool, error) {
	role, isAdmin, err := v.admins.AdminRole(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("resolve admin role: %w", err)
	}
	if isAdmin && role.Outranks(required) {
		return true, nil
	}

	if tenantID == nil {
		return false, nil
	}

	membership, found, err := v.memberships.ActiveMembership(ctx, uid, *tenantID)
	if err != nil {
		return false, fmt.Errorf("lookup membership: %w", err)
	}
	return found && membership.Active && membership.Role == required, nil
}

// ValidateAPIAccess composes authentication, tenant access and role checks,
// returning the first failure.
func (v *Validator) ValidateAPIAccess(ctx context.Context, tenantID *uuid.UUID, required *auth.Role) APIAccessResult {
	creds, err := v.session.CurrentUser(ctx)
	if err != nil || creds == nil || creds.Id == "" {
		v.RecordEvent(ctx, Event{
			Type:     EventAPIAccessDenied,
			TenantID: tenantID,
			Metadata: map[string]any{"reason": ReasonUnauthenticated},
		})
		v.metrics.ObserveAccess("api_access", false)
		return APIAccessResult{TenantID: tenantID, Reason: ReasonUnauthenticated}
	}

	if tenantID != nil {
		res := v.ValidateTenantAccess(ctx, *tenantID, &creds.Id)
		if !res.IsValid {
			v.metrics.ObserveAccess("api_access", false)
			return APIAccessResult{User: creds, TenantID: tenantID, Reason: res.Reason}
		}
	}

	if required != nil && !v.ValidateUserRole(ctx, *required, tenantID) {
		v.RecordEvent(ctx, Event{
			Type:     EventAPIAccessDenied,
			UserID:   &creds.Id,
			TenantID: tenantID,
			Metadata: map[string]any{"reason": ReasonInsufficientRole, "required_role": required.String()},
		})
		v.metrics.ObserveAccess("api_access", false)
		return APIAccessResult{User: creds, TenantID: tenantID, Reason: ReasonInsufficientRole}
	}

	v.metrics.ObserveAccess("api_access", true)
	return APIAccessResult{Allowed: true, User: creds, TenantID: tenantID}
}

// IsSuperAdmin reports whether userID holds the global super admin role.
// Lookup failures record role_validation_error and return false.
func (v *Validator) IsSuperAdmin(ctx context.Context, userID string) bool {
	role, isAdmin, err := v.admins.AdminRole(ctx, userID)
	if err != nil {
		v.RecordEvent(ctx, Event{
			Type:     EventRoleValidationErr,
			UserID:   &userID,
			Metadata: map[string]any{"required_role": auth.RoleSuperAdmin.String(), "error": err.Error()},
		})
		return false
	}
	return isAdmin && role == auth.RoleSuperAdmin
}

// DetectSuspiciousActivity counts events of activityType for userID in the
// trailing window. Above the threshold it records
// suspicious_activity_detected and returns a warning for the user. With
// blocking enabled the user is denied tenant access until the window elapses.
func (v *Validator) DetectSuspiciousActivity(ctx context.Context, userID string, activityType EventType) (SuspicionResult, error) {
	if userID == "" {
		return SuspicionResult{}, errors.New("detect suspicious activity: user id is required")
	}

	now := v.clock.Now()
	count, err := v.sink.CountSince(ctx, userID, activityType, now.Add(-v.window))
	if err != nil {
		return SuspicionResult{}, fmt.Errorf("count %s events: %w", activityType, err)
	}

	res := SuspicionResult{Count: count}
	if count <= v.threshold {
		return res, nil
	}

	res.Suspicious = true
	res.Warning = suspiciousWarning

	metadata := map[string]any{
		"activity_type":  string(activityType),
		"count":          count,
		"window_seconds": int(v.window.Seconds()),
	}
	if v.block {
		until := now.Add(v.window)
		v.mu.Lock()
		v.blocked[userID] = until
		v.mu.Unlock()
		res.BlockedUntil = &until
		metadata["blocked_until"] = until.UTC().Format(time.RFC3339)
	}

	v.logger.Warn("suspicious activity detected",
		zap.String("user_id", userID),
		zap.String("activity_type", string(activityType)),
		zap.Int("count", count),
	)
	v.RecordEvent(ctx, Event{Type: EventSuspiciousActivity, UserID: &userID, Metadata: metadata})

	return res, nil
}

// RecordEvent stamps event and writes it to the sink. Write failures are
// logged and never returned.
func (v *Validator) RecordEvent(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = v.clock.Now().UTC()
	}
	if audit, ok := requesttrace.FromContext(ctx); ok {
		if event.IPAddress == "" {
			event.IPAddress = audit.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = audit.UserAgent
		}
		if audit.RequestID != "" {
			if event.Metadata == nil {
				event.Metadata = map[string]any{}
			}
			if _, set := event.Metadata["request_id"]; !set {
				event.Metadata["request_id"] = audit.RequestID
			}
		}
	}

	v.metrics.ObserveEvent(string(event.Type))

	// The audit write must not be cut short by a cancelled request.
	if err := v.sink.Record(context.WithoutCancel(ctx), event); err != nil {
		v.metrics.ObserveSinkError()
		v.logger.Warn("record security event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (v *Validator) actingUser(ctx context.Context, userID *string) (string, bool) {
	if userID != nil && *userID != "" {
		return *userID, true
	}
	creds, err := v.session.CurrentUser(ctx)
	if err != nil || creds == nil || creds.Id == "" {
		return "", false
	}
	return creds.Id, true
}

func (v *Validator) blockedUntil(userID string) (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	until, ok := v.blocked[userID]
	if !ok {
		return time.Time{}, false
	}
	if !v.clock.Now().Before(until) {
		delete(v.blocked, userID)
		return time.Time{}, false
	}
	return until, true
}

func (v *Validator) grantTenant(ctx context.Context, tenantID uuid.UUID, uid string, role auth.Role) TenantAccessResult {
	if v.recordGrants {
		v.RecordEvent(ctx, Event{
			Type:     EventTenantAccessGranted,
			UserID:   &uid,
			TenantID: &tenantID,
			Metadata: map[string]any{"role": role.String()},
		})
	}
	v.metrics.ObserveAccess("tenant_access", true)
	return TenantAccessResult{IsValid: true, TenantID: tenantID, UserID: uid, Role: role}
}

func (v *Validator) denyTenant(ctx context.Context, tenantID uuid.UUID, uid, reason, message string) TenantAccessResult {
	event := Event{
		Type:     EventTenantAccessDenied,
		TenantID: &tenantID,
		Metadata: map[string]any{"reason": reason},
	}
	if uid != "" {
		event.UserID = &uid
	}

	v.logger.Info("tenant access denied",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", uid),
		zap.String("reason", reason),
	)
	v.RecordEvent(ctx, event)
	v.metrics.ObserveAccess("tenant_access", false)

	if uid != "" && reason != ReasonUserBlocked {
		if _, err := v.DetectSuspiciousActivity(ctx, uid, EventTenantAccessDenied); err != nil {
			v.logger.Warn("suspicious activity check failed", zap.String("user_id", uid), zap.Error(err))
		}
	}

	return TenantAccessResult{TenantID: tenantID, UserID: uid, Reason: reason, Error: message}
}

func (v *Validator) failTenant(ctx context.Context, tenantID uuid.UUID, uid string, err error) TenantAccessResult {
	v.logger.Warn("tenant access validation failed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", uid),
		zap.Error(err),
	)
	v.RecordEvent(ctx, Event{
		Type:     EventTenantValidationErr,
		UserID:   &uid,
		TenantID: &tenantID,
		Metadata: map[string]any{"error": err.Error()},
	})
	v.metrics.ObserveAccess("tenant_access", false)

	return TenantAccessResult{
		TenantID: tenantID,
		UserID:   uid,
		Reason:   ReasonValidationError,
		Error:    "access could not be verified",
	}
}
