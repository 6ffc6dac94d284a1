package pairing

import "errors"

// Error kinds for pairing and assignment rules. Callers branch with
// errors.Is; messages are for display only.
var (
	ErrValidation    = errors.New("invalid input")
	ErrUnauthorized  = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrLimitExceeded = errors.New("link limit exceeded")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrInvalidCode   = errors.New("unknown code")
	ErrCodeInactive  = errors.New("code is no longer active")
	ErrWrongRole     = errors.New("code was issued by the wrong role")
)
