package identity

import (
	"context"
	"time"
)

// User is Vigil's security principal.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// Verifier is the credential boundary used by the session facade.
//
// Verify reports exactly one of: a match (nil error), ErrNoSuchUser, or
// ErrBadPassword. Callers collapse the latter two into a single externally
// visible error to avoid username enumeration.
//
// Create reports ErrConflict when the username is already taken.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (User, error)
	Create(ctx context.Context, username, password string) (User, error)

	// Lookup resolves a user by ID; ErrNotFound when absent.
	Lookup(ctx context.Context, userID string) (User, error)
}
