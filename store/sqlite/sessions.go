package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimlik-auth/kimlik"
)

// SessionStore implements kimlik.SessionStore on a shared *sql.DB.
type SessionStore struct {
	db *sql.DB
}

var _ kimlik.SessionStore = (*SessionStore)(nil)

const sessionColumns = `id, user_id, refresh_token_hash, access_jti, ip,
	user_agent, expires_at, is_revoked, revoked_at, created_at`

func (s *SessionStore) Create(ctx context.Context, sess *kimlik.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash, sess.AccessJTI, sess.IP,
		sess.UserAgent, sess.ExpiresAt, sess.Revoked, nullableTimePtr(sess.RevokedAt),
		sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetByTokenHash(ctx context.Context, hash string) (*kimlik.Session, error) {
	var (
		sess      kimlik.Session
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = ?`,
		hash,
	).Scan(
		&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.AccessJTI, &sess.IP,
		&sess.UserAgent, &sess.ExpiresAt, &sess.Revoked, &revokedAt, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kimlik.ErrNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
}

// RevokeAllForUser soft-revokes in one statement and returns the rows it
// touched so callers can blacklist the access tokens those sessions issued.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]kimlik.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions SET is_revoked = 1, revoked_at = ?
		WHERE user_id = ? AND is_revoked = 0
		RETURNING `+sessionColumns,
		at, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	defer rows.Close()

	var revoked []kimlik.Session
	for rows.Next() {
		var (
			sess      kimlik.Session
			revokedAt sql.NullTime
		)
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.AccessJTI, &sess.IP,
			&sess.UserAgent, &sess.ExpiresAt, &sess.Revoked, &revokedAt, &sess.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan revoked session: %w", err)
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			sess.RevokedAt = &t
		}
		revoked = append(revoked, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked sessions: %w", err)
	}
	return revoked, nil
}
