package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNoSuchUser   = errors.New("no_such_user")
	ErrBadPassword  = errors.New("bad_password")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not_found")
)
