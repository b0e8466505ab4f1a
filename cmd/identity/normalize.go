package identity

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateCredentials enforces the input rules for registration and login:
// username non-empty, at most 50 characters, alphanumeric; password between
// 1 and 72 bytes (the bcrypt input limit).
func ValidateCredentials(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return OpError{Op: "identity.ValidateCredentials", Kind: ErrInvalidInput, Msg: "username cannot be empty"}
	}
	if len(username) > 50 {
		return OpError{Op: "identity.ValidateCredentials", Kind: ErrInvalidInput, Msg: "username cannot exceed 50 characters"}
	}
	if !usernamePattern.MatchString(username) {
		return OpError{Op: "identity.ValidateCredentials", Kind: ErrInvalidInput, Msg: "username must be alphanumeric"}
	}
	if len(password) < 1 || len(password) > 72 {
		return OpError{Op: "identity.ValidateCredentials", Kind: ErrInvalidInput, Msg: "password must be between 1 and 72 characters"}
	}
	return nil
}
