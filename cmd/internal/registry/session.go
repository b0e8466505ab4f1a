package registry

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"
)

// Session represents one authenticated login instance.
//
// The ID doubles as the bearer credential handed to the client and as the
// reverse-index key, so it must be unguessable. Once a session is destroyed
// its ID is never reused or revived.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// newSessionID returns a 32-byte random token, base64url encoded (44 chars).
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
