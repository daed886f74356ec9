package service

import "errors"

// Sentinel kinds for engine errors.
var (
	ErrUnknownKind        = errors.New("unknown score kind")
	ErrUnknownTrigger     = errors.New("unknown trigger")
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrReasonRequired marks a manual trigger without a human-readable
	// reason. This is a hard precondition, not optional metadata.
	ErrReasonRequired = errors.New("manual trigger requires a reason")
)
