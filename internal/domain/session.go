package domain

import (
	"context"
	"time"
)

// User is the authenticated user record returned by the auth interface.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// PersistedSession is the client state written to durable local storage and
// read back at startup, so the UI does not flicker before the authoritative
// getMe fetch completes.
type PersistedSession struct {
	Bearer  string    `json:"-"`
	User    User      `json:"user"`
	SavedAt time.Time `json:"saved_at"`
}

// SessionStore persists the bearer credential and last-known user record.
// Implementations seal the bearer at rest.
type SessionStore interface {
	Save(ctx context.Context, s *PersistedSession) error

	// Load returns ErrNoSession when nothing is persisted.
	Load(ctx context.Context) (*PersistedSession, error)

	Clear(ctx context.Context) error
}
