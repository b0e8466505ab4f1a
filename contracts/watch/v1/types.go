// Package v1 defines the Vigil session-watch protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeSessionList carries the full active-session set for the watched user
	// (server -> client). The first envelope on a fresh watch is always a
	// session list reflecting the set at subscribe time.
	TypeSessionList = "session_list"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeSessionList, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// SessionInfo is the client-visible view of one active session.
type SessionInfo struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
}

// SessionListPayload mirrors the watched user's active-session set.
// Sessions are ordered by creation time, oldest first, so clients can
// render deterministically without sorting.
type SessionListPayload struct {
	UserID   string        `json:"user_id"`
	Sessions []SessionInfo `json:"sessions"`
}

// ErrorPayload reports a server-side error to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---- Close reasons ----

// Close reasons carried in the websocket close frame when the server
// terminates a watch. Clients treat any closure as "return to login";
// the reason exists for logs and diagnostics, not for branching.
const (
	// CloseReasonLogout: the session that authorized this watch was logged out.
	CloseReasonLogout = "logout"
	// CloseReasonLogoutAll: every session of the watched user was logged out.
	CloseReasonLogoutAll = "logout_all"
	// CloseReasonAdmin: the watch was terminated administratively.
	CloseReasonAdmin = "terminated"
)
