package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Verifier used when no database is configured
// and throughout the test suite. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*memoryUser // normalized username -> record
	byID  map[string]*memoryUser
}

type memoryUser struct {
	user User
	hash string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*memoryUser),
		byID:  make(map[string]*memoryUser),
	}
}

// Create registers a new user; ErrConflict when the username is taken.
func (s *MemoryStore) Create(ctx context.Context, username, password string) (User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return User{}, err
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[norm]; taken {
		return User{}, ConflictError{Op: "identity.Create", Field: "username"}
	}

	rec := &memoryUser{
		user: User{
			ID:        uuid.NewString(),
			Username:  username,
			CreatedAt: time.Now().UTC(),
		},
		hash: hash,
	}
	s.users[norm] = rec
	s.byID[rec.user.ID] = rec
	return rec.user, nil
}

// Verify authenticates username/password.
func (s *MemoryStore) Verify(ctx context.Context, username, password string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	rec := s.users[NormalizeUsername(username)]
	s.mu.RUnlock()

	if rec == nil {
		return User{}, OpError{Op: "identity.Verify", Kind: ErrNoSuchUser}
	}
	if err := VerifyPassword(password, rec.hash); err != nil {
		return User{}, err
	}
	return rec.user, nil
}

// Lookup resolves a user by ID.
func (s *MemoryStore) Lookup(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	rec := s.byID[userID]
	s.mu.RUnlock()

	if rec == nil {
		return User{}, OpError{Op: "identity.Lookup", Kind: ErrNotFound}
	}
	return rec.user, nil
}
