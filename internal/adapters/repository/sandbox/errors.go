package sandbox

import "errors"

// Sentinel kinds for sandbox binding errors.
var (
	ErrSandboxExpired = errors.New("sandbox context expired")
)
