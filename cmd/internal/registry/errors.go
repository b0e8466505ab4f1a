package registry

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID is unknown or already destroyed.
	// Logout-style callers treat this as benign (already logged out).
	ErrSessionNotFound = errors.New("session not found")

	// ErrRegistryFull is returned when a capacity limit prevents session creation.
	// It is a service-level exhaustion condition, not a per-user error.
	ErrRegistryFull = errors.New("registry full")

	// ErrInvalidInput is returned for empty or malformed identifiers.
	ErrInvalidInput = errors.New("invalid input")
)
