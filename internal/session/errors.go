package session

import "errors"

// Sentinel errors for session operations, checked with errors.Is.
var (
	// ErrMissingIdentity is returned when a session is built without a
	// device id or status topic. Fatal at init.
	ErrMissingIdentity = errors.New("session: device identity is required")

	// ErrConnectionFailed is returned when the initial connect attempt
	// times out or is rejected by the broker. Recoverable; retrying is
	// the caller's decision.
	ErrConnectionFailed = errors.New("session: connection failed")
)
