package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimlik-auth/kimlik"
)

// ResetTokenStore implements kimlik.ResetTokenStore on a shared *sql.DB.
type ResetTokenStore struct {
	db *sql.DB
}

var _ kimlik.ResetTokenStore = (*ResetTokenStore)(nil)

func (s *ResetTokenStore) Create(ctx context.Context, t *kimlik.ResetToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Used, nullableTimePtr(t.UsedAt), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (s *ResetTokenStore) GetByTokenHash(ctx context.Context, hash string) (*kimlik.ResetToken, error) {
	var (
		t      kimlik.ResetToken
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, used, used_at, created_at
		FROM password_reset_tokens WHERE token_hash = ?`,
		hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &usedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kimlik.ErrNotFound
		}
		return nil, fmt.Errorf("query reset token: %w", err)
	}
	if usedAt.Valid {
		at := usedAt.Time
		t.UsedAt = &at
	}
	return &t, nil
}

func (s *ResetTokenStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE password_reset_tokens SET used = 1, used_at = ?
		WHERE id = ? AND used = 0`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return kimlik.ErrNotFound
	}
	return nil
}

func (s *ResetTokenStore) DeleteUnusedForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE user_id = ? AND used = 0`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete unused reset tokens: %w", err)
	}
	return nil
}

func (s *ResetTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < ?`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
