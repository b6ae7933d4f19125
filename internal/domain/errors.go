package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")

	// ErrLockLost is returned by the job store when a finalize call arrives
	// from a worker that no longer holds the row lock. The caller must
	// discard its result; the reclaim path owns the job now.
	ErrLockLost = errors.New("job lock lost")

	// ErrAlreadyTerminal is returned for mutations against a job that has
	// already reached a terminal state.
	ErrAlreadyTerminal = errors.New("job already terminal")

	// ErrTransient marks failures that are safe to retry. Adapters wrap
	// network and 5xx errors with it so handlers can pick a retry policy
	// without knowing the backend.
	ErrTransient = errors.New("transient failure")
)
