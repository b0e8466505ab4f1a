package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder appends audit events to a database table.
//
// Expected schema (managed out of band):
//
//	CREATE TABLE vigil.events (
//	    id         bigserial PRIMARY KEY,
//	    type       text NOT NULL,
//	    user_id    uuid,
//	    session_id text,
//	    created_at timestamptz NOT NULL
//	);
type PostgresRecorder struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	schema string

	timeout time.Duration
}

// NewPostgresRecorder constructs a database-backed Recorder.
// The schema must be a lowercase identifier; default "vigil".
func NewPostgresRecorder(log *slog.Logger, pool *pgxpool.Pool, schema string) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, errors.New("audit: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "vigil"
	}
	return &PostgresRecorder{
		log:     log,
		pool:    pool,
		schema:  schema,
		timeout: 2 * time.Second,
	}, nil
}

// Record inserts the event. Failures are logged, never returned: the audit
// trail must not break the request path.
func (r *PostgresRecorder) Record(ctx context.Context, e Event) {
	// Detach from request cancellation so a client disconnect does not lose the event.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var userID *string
	if e.UserID != "" {
		userID = &e.UserID
	}
	var sessionID *string
	if e.SessionID != "" {
		sessionID = &e.SessionID
	}

	_, err := r.pool.Exec(insertCtx,
		`INSERT INTO `+r.schema+`.events (type, user_id, session_id, created_at) VALUES ($1, $2, $3, $4)`,
		string(e.Type), userID, sessionID, e.At,
	)
	if err != nil {
		r.log.Error("audit.record.fail", "type", string(e.Type), "err", err)
	}
}
