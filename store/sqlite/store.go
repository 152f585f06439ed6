package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	email                 TEXT NOT NULL UNIQUE,
	password_hash         TEXT NOT NULL,
	first_name            TEXT NOT NULL DEFAULT '',
	last_name             TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'active',
	email_verified        INTEGER NOT NULL DEFAULT 0,
	verification_hash     TEXT NOT NULL DEFAULT '',
	verification_expires  TIMESTAMP,
	two_factor_enabled    INTEGER NOT NULL DEFAULT 0,
	terms_accepted        INTEGER NOT NULL DEFAULT 0,
	kvkk_consent_accepted INTEGER NOT NULL DEFAULT 0,
	failed_login_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until          TIMESTAMP,
	last_login_at         TIMESTAMP,
	created_at            TIMESTAMP NOT NULL,
	updated_at            TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_verification_hash ON users(verification_hash);

CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id),
	refresh_token_hash TEXT NOT NULL UNIQUE,
	access_jti         TEXT NOT NULL DEFAULT '',
	ip                 TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT '',
	expires_at         TIMESTAMP NOT NULL,
	is_revoked         INTEGER NOT NULL DEFAULT 0,
	revoked_at         TIMESTAMP,
	created_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS password_reset_tokens (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0,
	used_at    TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reset_tokens_user_id ON password_reset_tokens(user_id);
`

// DB wraps one SQLite connection pool shared by the three stores.
type DB struct {
	conn *sql.DB
}

// Open connects, enables foreign keys and WAL, and applies the schema.
// Use ":memory:" as the path for tests.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one so
	// every store sees the same data.
	if strings.Contains(path, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the UserStore implementation.
func (db *DB) Users() *UserStore { return &UserStore{db: db.conn} }

// Sessions returns the SessionStore implementation.
func (db *DB) Sessions() *SessionStore { return &SessionStore{db: db.conn} }

// ResetTokens returns the ResetTokenStore implementation.
func (db *DB) ResetTokens() *ResetTokenStore { return &ResetTokenStore{db: db.conn} }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
