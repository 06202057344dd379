// Package repository defines the storage contracts consumed by the service
// layer. The service depends on these interfaces, never on a concrete store.
package repository

import (
	"context"
	"time"

	"github.com/justanagent/auth-service/internal/model"
)

// UserRepository is the credential store contract.
//
// Save upserts: a user with an empty ID is inserted (the store assigns the ID
// and timestamps), an existing one is updated. The store enforces uniqueness
// on email and on (oauth_provider, oauth_id); a violated constraint comes
// back wrapping apperror.ErrConflict, which is how a race between two
// concurrent registrations for the same email resolves.
//
// Email arguments are normalized (trimmed, lowercased) by the store before
// lookup, so callers may pass raw user input.
type UserRepository interface {
	Save(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByOAuth(ctx context.Context, provider model.Provider, oauthID string) (*model.User, error)
	// FindByResetTokenHash returns the user holding the given reset-token
	// digest whose expiry is still after now. A missing digest and an expired
	// one are the same ErrNotFound.
	FindByResetTokenHash(ctx context.Context, digest string, now time.Time) (*model.User, error)
}
