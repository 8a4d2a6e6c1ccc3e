package scopeddb

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrReadOnlyCollection is returned for writes to tenant-exempt collections.
	ErrReadOnlyCollection = errors.New("collection is read-only")
	// ErrUnknownCollection is returned by stores for collections they do not hold.
	ErrUnknownCollection = errors.New("unknown collection")
)

// FieldErrors maps a field (or collection, or filter) to a validation message.
type FieldErrors map[string]string

// ValidationError is returned before any store call for malformed operations.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return "validation error"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func invalid(field, message string) error {
	return &ValidationError{Fields: FieldErrors{field: message}}
}
