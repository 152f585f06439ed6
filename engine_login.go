package kimlik

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Login authenticates an email/password pair.
//
// The password is verified before the lock state is inspected, so every
// wrong guess counts against the attempt budget even on an already locked
// account. The attempt that crosses the threshold still answers
// [ErrInvalidCredentials]; only the next one reports [ErrAccountLocked],
// which keeps the lock from acting as an oracle for a just-guessed password.
//
// For users with a second factor enrolled (and a verifier wired), Login
// short-circuits with a challenge token instead of credentials.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	now := time.Now()

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn comparable time so unknown emails are not
			// distinguishable from wrong passwords.
			_, _ = e.passwordHash.Verify(pass, e.decoyHash)
			e.metrics.Inc(MetricLoginFailure)
			e.emit(ctx, AuditEvent{EventType: AuditLogin, Email: email, Error: ErrInvalidCredentials.Error()})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	match, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: verify password: %v", ErrInternal, err)
	}

	if statusErr := checkAccountStatus(user, now); statusErr != nil {
		if !match {
			// The wrong guess still counts while locked.
			if _, _, err := e.users.RecordLoginFailure(ctx, user.ID, e.config.Lockout.MaxAttempts, e.config.Lockout.LockDuration); err != nil {
				return nil, fmt.Errorf("%w: record login failure: %v", ErrInternal, err)
			}
		}
		e.metrics.Inc(MetricLoginLocked)
		e.emit(ctx, AuditEvent{EventType: AuditLoginLocked, UserID: user.ID, Email: email, Error: statusErr.Error()})
		return nil, statusErr
	}

	if !match {
		if _, _, err := e.users.RecordLoginFailure(ctx, user.ID, e.config.Lockout.MaxAttempts, e.config.Lockout.LockDuration); err != nil {
			return nil, fmt.Errorf("%w: record login failure: %v", ErrInternal, err)
		}
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.ID, Email: email, Error: ErrInvalidCredentials.Error()})
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled && e.twoFactor != nil {
		challenge, err := e.challenges.Issue(ctx, user.ID, e.config.TwoFactor.ChallengeTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		e.metrics.Inc(MetricLoginChallenge)
		e.emit(ctx, AuditEvent{EventType: AuditLoginChallenge, UserID: user.ID, Email: email, Success: true})
		return &LoginResult{
			RequiresTwoFactor: true,
			ChallengeToken:    challenge,
		}, nil
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.ID, Email: email, Success: true})
	return result, nil
}

// ConfirmLogin2FA completes a challenged login. The challenge is consumed on
// first use: a wrong code burns it and the user must log in again, so a
// stolen challenge token grants at most one guess.
func (e *Engine) ConfirmLogin2FA(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if challengeToken == "" || code == "" {
		return nil, ErrTwoFactorInvalid
	}
	if e.twoFactor == nil {
		return nil, ErrTwoFactorInvalid
	}

	userID, err := e.challenges.Consume(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			e.metrics.Inc(MetricTwoFactorFailure)
			return nil, ErrTwoFactorInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	ok, err := e.twoFactor.Verify(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("%w: verify second factor: %v", ErrInternal, err)
	}
	if !ok {
		e.metrics.Inc(MetricTwoFactorFailure)
		e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: userID, Error: ErrTwoFactorInvalid.Error()})
		return nil, ErrTwoFactorInvalid
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTwoFactorInvalid
		}
		return nil, fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	// The account can have been locked or suspended between the challenge
	// and the confirmation.
	if statusErr := checkAccountStatus(user, time.Now()); statusErr != nil {
		e.metrics.Inc(MetricLoginLocked)
		e.emit(ctx, AuditEvent{EventType: AuditLoginLocked, UserID: user.ID, Error: statusErr.Error()})
		return nil, statusErr
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricTwoFactorSuccess)
	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.ID, Email: user.Email, Success: true, Metadata: map[string]string{"second_factor": "verified"}})
	return result, nil
}
