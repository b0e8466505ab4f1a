package session

import (
	"errors"

	"vigil/cmd/internal/registry"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown user and for a
	// wrong password alike; the two are never distinguished externally.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken is returned by Register when the username exists.
	// It is reported verbatim so clients can prompt differently.
	ErrUsernameTaken = errors.New("username taken")

	// ErrInvalidInput is returned for malformed usernames or passwords.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound mirrors the registry sentinel: the presented session
	// is unknown or already destroyed. Logout callers treat it as benign.
	ErrSessionNotFound = registry.ErrSessionNotFound

	// ErrRegistryFull mirrors the registry sentinel: service-level exhaustion.
	ErrRegistryFull = registry.ErrRegistryFull
)
