package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimlik-auth/kimlik"
)

// UserStore implements kimlik.UserStore on a shared *sql.DB.
type UserStore struct {
	db *sql.DB
}

var _ kimlik.UserStore = (*UserStore)(nil)

const userColumns = `id, email, password_hash, first_name, last_name, status,
	email_verified, verification_hash, verification_expires,
	two_factor_enabled, terms_accepted, kvkk_consent_accepted,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *kimlik.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Status),
		u.EmailVerified, u.VerificationHash, nullableTime(&u.VerificationExpires),
		u.TwoFactorEnabled, u.TermsAccepted, u.KVKKConsentAccepted,
		u.FailedLoginAttempts, nullableTimePtr(u.LockedUntil), nullableTimePtr(u.LastLoginAt),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return kimlik.ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*kimlik.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*kimlik.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *UserStore) GetByVerificationHash(ctx context.Context, hash string) (*kimlik.User, error) {
	if hash == "" {
		return nil, kimlik.ErrNotFound
	}
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE verification_hash = ?`, hash)
}

func (s *UserStore) getUser(ctx context.Context, query string, arg any) (*kimlik.User, error) {
	var (
		u                   kimlik.User
		status              string
		verificationExpires sql.NullTime
		lockedUntil         sql.NullTime
		lastLoginAt         sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &status,
		&u.EmailVerified, &u.VerificationHash, &verificationExpires,
		&u.TwoFactorEnabled, &u.TermsAccepted, &u.KVKKConsentAccepted,
		&u.FailedLoginAttempts, &lockedUntil, &lastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kimlik.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.Status = kimlik.AccountStatus(status)
	if verificationExpires.Valid {
		u.VerificationExpires = verificationExpires.Time
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *UserStore) SetVerificationToken(ctx context.Context, id, hash string, expires time.Time) error {
	return s.updateOne(ctx, `
		UPDATE users SET verification_hash = ?, verification_expires = ?, updated_at = ?
		WHERE id = ?`,
		hash, expires, time.Now(), id)
}

func (s *UserStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.updateOne(ctx, `
		UPDATE users SET email_verified = 1, updated_at = ?
		WHERE id = ?`,
		time.Now(), id)
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ?
		WHERE id = ?`,
		hash, time.Now(), id)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, `
		UPDATE users SET last_login_at = ?, updated_at = ?
		WHERE id = ?`,
		at, at, id)
}

// RecordLoginFailure is a single UPDATE ... RETURNING so the counter stays
// correct under concurrent failed logins against the same account.
func (s *UserStore) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	now := time.Now()
	deadline := now.Add(lockFor)

	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= ? THEN ?
				ELSE locked_until
			END,
			updated_at = ?
		WHERE id = ?
		RETURNING failed_login_attempts, locked_until`,
		maxAttempts, deadline, now, id,
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, kimlik.ErrNotFound
		}
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

func (s *UserStore) ResetLoginFailures(ctx context.Context, id string) error {
	return s.updateOne(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now(), id)
}

func (s *UserStore) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
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

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
