package session

import "errors"

var (
	// ErrSessionNotFound is returned when an operation targets a role with
	// no active session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when an operation is attempted on a
	// session that already reached a terminal state.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrExpiredRequest is returned when an export is started against an
	// import request whose expiry has passed.
	ErrExpiredRequest = errors.New("import request has expired")

	// ErrNotComplete is returned when completion is requested before the
	// decoder has reconstructed and authenticated the payload.
	ErrNotComplete = errors.New("decoding is not complete")

	// ErrMalformedRequest is returned for an import request string that
	// cannot be parsed.
	ErrMalformedRequest = errors.New("malformed import request")
)
