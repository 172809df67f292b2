package domain

import (
	"errors"
	"fmt"
)

// Business outcome kinds. Handlers map these to response codes with
// errors.Is; anything that does not match is a storage/internal failure.
var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("scheduling conflict")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrDuplicateGrant = errors.New("duplicate grant")
)

// ValidationError wraps ErrValidation with detail about the rejected input.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ConflictError wraps ErrConflict for overlapping time ranges.
func ConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundError wraps ErrNotFound naming the missing resource. A version id
// that belongs to a different event is reported through this kind as well,
// never as a permission failure.
func NotFoundError(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// ForbiddenError wraps ErrForbidden with the denied action.
func ForbiddenError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// DuplicateGrantError wraps ErrDuplicateGrant for an existing (user, event) grant.
func DuplicateGrantError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicateGrant, fmt.Sprintf(format, args...))
}
