package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("conflict")

// ConflictError names the violated constraint.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string { return "conflict on " + e.Constraint }

// Is reports ErrConflict as a match.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr, true
	}
	return nil, false
}

func mapWriteError(err error) error {
	if pgErr, ok := isUniqueViolation(err); ok {
		return &ConflictError{Constraint: pgErr.ConstraintName}
	}
	return err
}
