// Package session owns the client's authentication lifecycle: it obtains
// tokens from the identity provider, keeps them fresh, and exposes the
// current identity to the rest of the application. There is exactly one
// authenticated-or-not session per Manager instance.
package session

import "time"

// State is the session lifecycle state.
//
// Valid transitions:
//
//	INITIALIZING    -> UNAUTHENTICATED | AUTHENTICATED  (bootstrap)
//	AUTHENTICATED   -> AUTHENTICATED                     (refresh)
//	AUTHENTICATED   -> UNAUTHENTICATED                   (logout, refresh failure)
//	UNAUTHENTICATED -> AUTHENTICATED                     (login handshake only)
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	}
	return "UNKNOWN"
}

// Session is the mutable authentication state. It is owned exclusively by
// the Manager; everything outside the package sees only Snapshot.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       Claims
}

// Snapshot is the read-only projection handed to callers.
type Snapshot struct {
	Authenticated bool
	Loading       bool
	User          Claims
}
