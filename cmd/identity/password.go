package identity

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultBcryptCost = 10
	maxBcryptCost     = 15
)

// BcryptCost returns the configured hashing cost.
// VIGIL_BCRYPT_COST should be 12+ in production environments.
func BcryptCost() int {
	v := strings.TrimSpace(os.Getenv("VIGIL_BCRYPT_COST"))
	if v == "" {
		return defaultBcryptCost
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < bcrypt.MinCost || n > maxBcryptCost {
		return defaultBcryptCost
	}
	return n
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if len(password) < 1 || len(password) > 72 {
		return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password must be between 1 and 72 characters"}
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword checks a password against a bcrypt hash.
// A mismatch is reported as ErrBadPassword; anything else is a real failure.
func VerifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return OpError{Op: "identity.VerifyPassword", Kind: ErrBadPassword}
	}
	return err
}
