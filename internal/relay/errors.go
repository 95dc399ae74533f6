package relay

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed relay call.
type ErrorKind string

const (
	// KindAuth means the credential is missing or was refused. Terminal: the
	// user must re-authenticate before retrying.
	KindAuth ErrorKind = "auth"
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork ErrorKind = "network"
	// KindBackend means the relay answered with an error status or a body
	// that could not be understood.
	KindBackend ErrorKind = "backend"
)

var (
	// ErrNoCredential is wrapped by auth errors raised before any request is made.
	ErrNoCredential = errors.New("no bearer credential")

	// ErrSessionExpired is wrapped by heartbeat errors when the relay no longer
	// knows the session (404 or 410).
	ErrSessionExpired = errors.New("relay session expired")
)

// Error is returned by every Client operation that fails.
type Error struct {
	Kind   ErrorKind
	Op     string // "start", "stop" or "heartbeat"
	Status int    // HTTP status, 0 when no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay %s: %s error (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("relay %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a relay error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsRetryable reports whether a manual retry can succeed without the user
// re-authenticating.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindBackend
}
