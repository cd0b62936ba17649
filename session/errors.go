package session

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation needs an active
	// session and there is none. Refreshing while unauthenticated is a
	// no-op that reports this.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the refresh token was rejected by
	// the provider; the session has been cleared and a fresh login is
	// required.
	ErrSessionExpired = errors.New("session expired")

	// ErrLoginStateMismatch is returned when the state parameter on the
	// login callback does not match the pending handshake.
	ErrLoginStateMismatch = errors.New("login state mismatch")
)
