package errors

import "errors"

var (
	ErrNotFound = errors.New("appointment not found")

	ErrInvalidID = errors.New("invalid appointment ID format")

	ErrLockNotFound = errors.New("reservation lock not found")

	// ErrNotCancellable is returned when a conditional cancel finds the
	// appointment no longer scheduled.
	ErrNotCancellable = errors.New("appointment is not in a cancellable state")
)
