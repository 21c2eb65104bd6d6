package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the registry wraps exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrStore      = errors.New("store failure")
	ErrTimeout    = errors.New("store timeout")
)

// Domain errors
var (
	ErrRoomNotFound        = fmt.Errorf("room %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	ErrWrongPassword       = fmt.Errorf("wrong room password: %w", ErrForbidden)
	ErrNotLeader           = fmt.Errorf("only the room leader may do this: %w", ErrForbidden)
	ErrInvalidRequest      = fmt.Errorf("invalid request: %w", ErrValidation)
	ErrInternalError       = errors.New("internal server error")
)

// MissingField returns a validation error naming the absent fields.
func MissingField(fields ...string) error {
	return fmt.Errorf("%w: missing required field %v", ErrValidation, fields)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Kind reports which of the error kinds err belongs to, or nil for errors outside the taxonomy.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrTimeout, ErrStore} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
