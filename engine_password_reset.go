package kimlik

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kimlik-auth/kimlik/internal"
	"github.com/kimlik-auth/kimlik/internal/blacklist"
)

// RequestPasswordReset starts the reset flow. It always reports success,
// whether or not the email is registered, so the endpoint cannot be used to
// enumerate accounts. Outstanding unused tokens are replaced: only the most
// recently mailed link works.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	e.metrics.Inc(MetricPasswordResetRequest)

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emit(ctx, AuditEvent{EventType: AuditPasswordResetRequest, Email: email, Metadata: map[string]string{"outcome": "unknown_email"}})
			return nil
		}
		return fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	if err := e.resets.DeleteUnusedForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: delete outstanding reset tokens: %v", ErrInternal, err)
	}

	rawToken, err := internal.NewToken()
	if err != nil {
		return fmt.Errorf("%w: generate reset token: %v", ErrInternal, err)
	}

	now := time.Now()
	record := &ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: internal.HashToken(rawToken),
		ExpiresAt: now.Add(e.config.PasswordReset.TokenTTL),
		CreatedAt: now,
	}
	if err := e.resets.Create(ctx, record); err != nil {
		return fmt.Errorf("%w: store reset token: %v", ErrInternal, err)
	}

	e.emit(ctx, AuditEvent{EventType: AuditPasswordResetRequest, UserID: user.ID, Email: email, Success: true})

	link := e.config.Links.BaseURL + "/reset-password?token=" + rawToken
	displayName := user.DisplayName()
	e.sendMail(email, func(ctx context.Context) error {
		return e.notifier.SendPasswordResetEmail(ctx, email, displayName, link)
	})

	return nil
}

// ConfirmPasswordReset consumes a reset token and installs the new
// password. Unknown, used and expired tokens fail identically with
// [ErrResetTokenInvalid]. On success the lockout counter clears, every
// session is revoked and every outstanding access token is blacklisted, so
// whoever held the old credentials is fully evicted.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	if rawToken == "" {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}

	record, err := e.resets.GetByTokenHash(ctx, internal.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.Inc(MetricPasswordResetConfirmFailure)
			e.emit(ctx, AuditEvent{EventType: AuditPasswordResetConfirm, Error: ErrResetTokenInvalid.Error()})
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%w: lookup reset token: %v", ErrInternal, err)
	}

	now := time.Now()
	if record.Used || now.After(record.ExpiresAt) {
		e.metrics.Inc(MetricPasswordResetConfirmFailure)
		e.emit(ctx, AuditEvent{EventType: AuditPasswordResetConfirm, UserID: record.UserID, Error: ErrResetTokenInvalid.Error()})
		return ErrResetTokenInvalid
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}

	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("%w: update password: %v", ErrInternal, err)
	}
	if err := e.users.ResetLoginFailures(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: reset login failures: %v", ErrInternal, err)
	}
	if err := e.resets.MarkUsed(ctx, record.ID, now); err != nil {
		return fmt.Errorf("%w: mark reset token used: %v", ErrInternal, err)
	}

	if _, err := e.sessions.RevokeAllForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("%w: revoke sessions: %v", ErrInternal, err)
	}
	if _, err := e.blacklist.RevokeAllForUser(ctx, user.ID, blacklist.ReasonPasswordReset); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	e.metrics.Inc(MetricSessionRevoked)

	e.metrics.Inc(MetricPasswordResetConfirmSuccess)
	e.emit(ctx, AuditEvent{EventType: AuditPasswordResetConfirm, UserID: user.ID, Email: user.Email, Success: true})

	email := user.Email
	displayName := user.DisplayName()
	e.sendMail(email, func(ctx context.Context) error {
		return e.notifier.SendPasswordResetSuccessEmail(ctx, email, displayName)
	})

	return nil
}
