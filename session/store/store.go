// Package store persists the session manager's artifacts between runs:
// the token slots and any login handshake that is still in flight.
package store

import "time"

// Artifacts are the persisted token slots. They are written as a unit and
// cleared as a unit; a partially written set must never be observable.
type Artifacts struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// PendingLogin records a login handshake that has been started but not yet
// completed. It survives the redirect to the identity provider so the flow
// can be finished on the next start.
type PendingLogin struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the persistence boundary for session state.
type Store interface {
	// SaveArtifacts replaces the token slots.
	SaveArtifacts(a Artifacts) error
	// LoadArtifacts returns the token slots; ok is false when none are stored.
	LoadArtifacts() (a Artifacts, ok bool, err error)
	// SavePendingLogin replaces the pending handshake record.
	SavePendingLogin(p PendingLogin) error
	// LoadPendingLogin returns the pending handshake; ok is false when none exists.
	LoadPendingLogin() (p PendingLogin, ok bool, err error)
	// ClearPendingLogin removes the pending handshake record.
	ClearPendingLogin() error
	// Clear removes everything atomically.
	Clear() error
}
