package transport

import (
	"errors"
	"fmt"

	"github.com/hearthkin/questlink/internal/pairing"
)

var (
	// ErrQueued reports a deferred success: the write could not be delivered
	// now and was persisted for replay. Callers should show a pending state,
	// not an error.
	ErrQueued = errors.New("mutation queued for later delivery")

	// ErrOffline is returned when the device is offline and queueing was not
	// permitted for the call.
	ErrOffline = errors.New("device is offline")

	// ErrConnection wraps a failed network round trip.
	ErrConnection = errors.New("connection failed")
)

// StatusError carries a non-2xx relay response that does not map to a
// domain error kind.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == 429
}

// apiError is the relay's structured error body. Kind names the error kind;
// the message is for display only.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// kindErrors maps relay error kinds back to the shared sentinels so remote
// and local mode surface identical errors.
var kindErrors = map[string]error{
	"validation":     pairing.ErrValidation,
	"unauthorized":   pairing.ErrUnauthorized,
	"not_found":      pairing.ErrNotFound,
	"limit_exceeded": pairing.ErrLimitExceeded,
	"invalid_state":  pairing.ErrInvalidState,
	"invalid_code":   pairing.ErrInvalidCode,
	"code_inactive":  pairing.ErrCodeInactive,
	"wrong_role":     pairing.ErrWrongRole,
}

// IsTransient reports whether err is a retryable network failure: a server
// error, a rate limit, or a failed connection. Domain errors and anything
// else are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrOffline) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
