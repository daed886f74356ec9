package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("storage unavailable")

	// ErrIsolationViolation marks an attempt to mix sandbox and production
	// partitions. It is a programming error: callers must abort, never
	// degrade, when they see it.
	ErrIsolationViolation = errors.New("sandbox isolation violation")
)
