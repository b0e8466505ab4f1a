// Package audit records authentication lifecycle events.
//
// Events are an append-only trail (who logged in/out and when), not an input
// to any runtime decision. Recording is best effort: failures are logged and
// absorbed, never surfaced to the request path.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// EventType enumerates the recorded lifecycle events.
type EventType string

const (
	AccountCreated EventType = "account_created"
	LoggedIn       EventType = "logged_in"
	LoggedOut      EventType = "logged_out"
	LoggedOutAll   EventType = "logged_out_all"
)

// Event is one immutable audit record.
type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	At        time.Time
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// SlogRecorder writes events to the structured log. It is the default when
// no database is configured.
type SlogRecorder struct {
	log *slog.Logger
}

// NewSlogRecorder constructs a log-backed Recorder.
func NewSlogRecorder(log *slog.Logger) *SlogRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &SlogRecorder{log: log}
}

// Record logs the event.
func (r *SlogRecorder) Record(_ context.Context, e Event) {
	r.log.Info("audit.event",
		"type", string(e.Type),
		"user_id", e.UserID,
		"session_id", e.SessionID,
		"at", e.At,
	)
}
