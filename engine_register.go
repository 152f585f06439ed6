package kimlik

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kimlik-auth/kimlik/internal"
)

// Register creates an account and dispatches the verification mail. The
// raw verification token leaves the system only inside that mail; the store
// keeps its SHA-256 digest.
//
// A duplicate email fails with [ErrEmailExists]. Consent flags are hard
// requirements: Turkish data-protection law (KVKK) demands an explicit
// opt-in recorded at registration time.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*PublicUser, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	if err := validateRegisterInput(email, in, e.config.Password.MinLength); err != nil {
		e.emit(ctx, AuditEvent{EventType: AuditRegister, Email: email, Error: errText(err)})
		return nil, err
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}

	rawToken, err := internal.NewToken()
	if err != nil {
		return nil, fmt.Errorf("%w: generate verification token: %v", ErrInternal, err)
	}

	now := time.Now()
	user := &User{
		ID:                  uuid.NewString(),
		Email:               email,
		PasswordHash:        hash,
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Status:              StatusActive,
		VerificationHash:    internal.HashToken(rawToken),
		VerificationExpires: now.Add(e.config.Verification.TokenTTL),
		TermsAccepted:       in.TermsAccepted,
		KVKKConsentAccepted: in.KVKKConsentAccepted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailExists) {
			e.metrics.Inc(MetricRegisterDuplicate)
			e.emit(ctx, AuditEvent{EventType: AuditRegister, Email: email, Error: ErrEmailExists.Error()})
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: create user: %v", ErrInternal, err)
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emit(ctx, AuditEvent{EventType: AuditRegister, UserID: user.ID, Email: email, Success: true})

	link := e.verificationLink(rawToken)
	displayName := user.DisplayName()
	e.sendMail(email, func(ctx context.Context) error {
		return e.notifier.SendVerificationEmail(ctx, email, displayName, rawToken, link)
	})

	return publicUser(user), nil
}

// VerifyEmail consumes a verification token and returns the verified
// account. Verifying an already verified account is a no-op success, so
// double-clicked mail links never error.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) (*PublicUser, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}

	user, err := e.users.GetByVerificationHash(ctx, internal.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.Inc(MetricVerifyFailure)
			e.emit(ctx, AuditEvent{EventType: AuditVerifyEmail, Error: ErrTokenInvalid.Error()})
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: lookup verification token: %v", ErrInternal, err)
	}

	if user.EmailVerified {
		return publicUser(user), nil
	}

	if time.Now().After(user.VerificationExpires) {
		e.metrics.Inc(MetricVerifyFailure)
		e.emit(ctx, AuditEvent{EventType: AuditVerifyEmail, UserID: user.ID, Error: ErrTokenExpired.Error()})
		return nil, ErrTokenExpired
	}

	if err := e.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("%w: mark verified: %v", ErrInternal, err)
	}
	user.EmailVerified = true

	e.metrics.Inc(MetricVerifySuccess)
	e.emit(ctx, AuditEvent{EventType: AuditVerifyEmail, UserID: user.ID, Email: user.Email, Success: true})
	return publicUser(user), nil
}

// ResendVerification issues a fresh verification token, invalidating the
// previous one, and mails it.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrEmailNotFound
		}
		return fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	rawToken, err := internal.NewToken()
	if err != nil {
		return fmt.Errorf("%w: generate verification token: %v", ErrInternal, err)
	}

	expires := time.Now().Add(e.config.Verification.TokenTTL)
	if err := e.users.SetVerificationToken(ctx, user.ID, internal.HashToken(rawToken), expires); err != nil {
		return fmt.Errorf("%w: store verification token: %v", ErrInternal, err)
	}

	e.emit(ctx, AuditEvent{EventType: AuditResendVerification, UserID: user.ID, Email: email, Success: true})

	link := e.verificationLink(rawToken)
	displayName := user.DisplayName()
	e.sendMail(email, func(ctx context.Context) error {
		return e.notifier.SendVerificationEmail(ctx, email, displayName, rawToken, link)
	})

	return nil
}

func (e *Engine) verificationLink(rawToken string) string {
	return e.config.Links.BaseURL + "/verify-email?token=" + rawToken
}

func validateRegisterInput(email string, in RegisterInput, minPassword int) error {
	if !validEmail(email) {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if len(in.Password) < minPassword {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, minPassword)
	}
	if !in.TermsAccepted {
		return fmt.Errorf("%w: terms must be accepted", ErrValidation)
	}
	if !in.KVKKConsentAccepted {
		return fmt.Errorf("%w: kvkk consent must be accepted", ErrValidation)
	}
	return nil
}
