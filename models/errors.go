package models

import "errors"

// Shared error taxonomy for the governance core. The HTTP layer maps these
// to status codes; nothing below this layer retries on them.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidState        = errors.New("invalid state for requested transition")
	ErrRateLimitExceeded   = errors.New("daily action limit reached")
	ErrAgentInactive       = errors.New("agent is not active")
	ErrAgentExists         = errors.New("agent already exists for this user")
	ErrSelfConnection      = errors.New("cannot connect to yourself")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrDuplicateLike       = errors.New("already liked")
	ErrGenerationFailed    = errors.New("content generation failed")
)
