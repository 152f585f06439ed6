package kimlik

import "errors"

// Sentinel errors returned by Engine operations. Callers match them with
// errors.Is; HTTP status mapping lives in httpapi.
var (
	// ErrValidation reports a malformed or incomplete request payload.
	ErrValidation = errors.New("validation failed")
	// ErrEmailExists reports a registration attempt with an email that is
	// already registered. The Turkish message is part of the public contract.
	ErrEmailExists = errors.New("bu e-posta adresi zaten kayıtlı")
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active or the
	// account status is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned for administratively suspended accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrEmailNotFound is returned by ResendVerification for unknown emails.
	ErrEmailNotFound = errors.New("email not found")
	// ErrAlreadyVerified is returned by ResendVerification when the account
	// has already completed verification.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrTokenInvalid covers malformed, forged, wrong-type and unknown tokens.
	// Parse failures are never distinguished further.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports a blacklisted token or a revoked session.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrResetTokenInvalid covers unknown, used and expired reset tokens
	// uniformly so callers cannot probe token state.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrTwoFactorRequired signals that Login produced a challenge instead of
	// tokens; it is a flow signal, not a failure.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrTwoFactorInvalid reports a failed 2FA code or an unknown challenge.
	ErrTwoFactorInvalid = errors.New("two-factor verification failed")
	// ErrRateLimited reports an exhausted per-action rate window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrPasswordPolicy reports a password below the configured minimum.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrNotFound is the store-level miss sentinel. Store implementations
	// return it (wrapped) for absent rows.
	ErrNotFound = errors.New("not found")
	// ErrInternal wraps store, cache and crypto failures at the Engine
	// boundary.
	ErrInternal = errors.New("internal error")
	// ErrEngineClosed is returned after Engine.Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrCacheUnavailable reports a failed Redis round-trip.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
