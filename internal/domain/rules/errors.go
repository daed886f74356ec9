package rules

import "errors"

// Sentinel kinds for rule-set errors.
var (
	ErrInvalidConfig    = errors.New("invalid rule configuration")
	ErrDuplicateVersion = errors.New("rule-set version already exists")
)
