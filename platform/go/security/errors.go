package security

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAccessDenied matches every *AccessDeniedError via errors.Is.
var ErrAccessDenied = errors.New("access denied")

// Denial reasons carried on results and events.
const (
	ReasonNoUser           = "no_user"
	ReasonNotMember        = "not_member"
	ReasonValidationError  = "validation_error"
	ReasonUserBlocked      = "user_blocked"
	ReasonInsufficientRole = "insufficient_role"
	ReasonUnauthenticated  = "unauthenticated"
	ReasonTenantInactive   = "tenant_inactive"
)

// AccessDeniedError is returned when an authorization check fails. It is
// distinct from store or network failures so callers can tell them apart.
type AccessDeniedError struct {
	TenantID *uuid.UUID
	UserID   string
	Reason   string
}

func (e *AccessDeniedError) Error() string {
	if e.TenantID != nil {
		return fmt.Sprintf("access denied to tenant %s: %s", e.TenantID, e.Reason)
	}
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Is reports ErrAccessDenied as a match.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
