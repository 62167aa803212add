package history

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrForbidden is returned when a session is missing or owned by someone else.
	// Both cases look the same to the caller.
	ErrForbidden   = errors.New("session not accessible")
	ErrInvalidPage = errors.New("invalid page or page size")
	ErrPersistence = errors.New("persistence failure")
)

// persistence tags a driver error as ErrPersistence and records where it happened.
func persistence(err error, op string) error {
	return fmt.Errorf("%w: %w", ErrPersistence, pkgerrors.Wrap(err, op))
}
