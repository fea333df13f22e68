// ABOUTME: CredentialStore interface and shared types for credential persistence.
// ABOUTME: Implemented by SQLiteStore for production and MockStore for tests.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no credential exists for an identity.
var ErrNotFound = errors.New("not found")

// Stats summarizes registrations.
type Stats struct {
	// Total is the number of stored credentials.
	Total int
	// NewSince counts identities first registered at or after the window start.
	NewSince int
	// ReconnectedSince counts identities re-registered at or after the window start.
	ReconnectedSince int
}

// CredentialStore maps identities to access tokens.
type CredentialStore interface {
	// SaveCredential upserts the token for identity and reports whether
	// one was already stored.
	SaveCredential(ctx context.Context, identity, token string) (existed bool, err error)
	GetCredential(ctx context.Context, identity string) (string, error)
	DeleteCredential(ctx context.Context, identity string) error
	// ListIdentities returns all identities in ascending order.
	ListIdentities(ctx context.Context) ([]string, error)
	CredentialStats(ctx context.Context, since time.Time) (Stats, error)
	Close() error
}
