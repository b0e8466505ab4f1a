package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore is the database-backed Verifier.
//
// Expected schema (managed out of band):
//
//	CREATE TABLE vigil.users (
//	    id            uuid PRIMARY KEY,
//	    username      text NOT NULL,
//	    username_norm text NOT NULL UNIQUE,
//	    password_hash text NOT NULL,
//	    created_at    timestamptz NOT NULL
//	);
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore behavior.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "vigil").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Verifier backed by PostgreSQL.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "vigil"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) users() string { return pgIdent(s.schema, "users") }

// Create registers a new user; ErrConflict when the username is taken.
func (s *PostgresStore) Create(ctx context.Context, username, password string) (User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(username),
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (id, username, username_norm, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, NormalizeUsername(u.Username), hash, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ConflictError{Op: "identity.Create", Field: "username"}
		}
		return User{}, err
	}
	return u, nil
}

// Verify authenticates username/password.
func (s *PostgresStore) Verify(ctx context.Context, username, password string) (User, error) {
	var (
		u    User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM `+s.users()+` WHERE username_norm = $1`,
		NormalizeUsername(username),
	).Scan(&u.ID, &u.Username, &hash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: "identity.Verify", Kind: ErrNoSuchUser}
	}
	if err != nil {
		return User{}, err
	}

	if err := VerifyPassword(password, hash); err != nil {
		return User{}, err
	}
	return u, nil
}

// Lookup resolves a user by ID.
func (s *PostgresStore) Lookup(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, created_at FROM `+s.users()+` WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: "identity.Lookup", Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ---- identifier hygiene ----

// isValidPGIdent allows lowercase identifiers only; queries build identifiers
// by concatenation, so this is the safety boundary.
func isValidPGIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func pgIdent(schema, table string) string {
	return schema + "." + table
}
