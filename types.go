package kimlik

import (
	"context"
	"time"
)

// AccountStatus is the administrative state of an account. The attempt-based
// lockout is tracked separately through User.LockedUntil.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusLocked    AccountStatus = "locked"
	StatusSuspended AccountStatus = "suspended"
)

// User is the durable credential record managed through a [UserStore].
// Raw verification tokens are never stored; only their SHA-256 digest.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Status              AccountStatus
	EmailVerified       bool
	VerificationHash    string
	VerificationExpires time.Time
	TwoFactorEnabled    bool
	TermsAccepted       bool
	KVKKConsentAccepted bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DisplayName is the name used in outbound mail.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Session is one refresh-token grant. Sessions are soft-revoked, never
// hard-deleted, so the ledger stays auditable.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	AccessJTI        string
	IP               string
	UserAgent        string
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// ResetToken is one password-reset grant. TokenHash is the SHA-256 digest of
// the raw token mailed to the user.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// UserStore is the durable credential ledger. Implementations return
// [ErrNotFound] (wrapped or bare) for absent rows and [ErrEmailExists] when
// Create violates the email uniqueness constraint.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByVerificationHash(ctx context.Context, hash string) (*User, error)

	SetVerificationToken(ctx context.Context, id, hash string, expires time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// RecordLoginFailure increments the failure counter in one atomic
	// round-trip and sets lockedUntil once the counter reaches maxAttempts.
	// It returns the post-increment counter and the lock deadline, if any.
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)
	// ResetLoginFailures clears the failure counter and any attempt-based lock.
	ResetLoginFailures(ctx context.Context, id string) error
}

// SessionStore is the durable session ledger.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	GetByTokenHash(ctx context.Context, hash string) (*Session, error)
	// RevokeAllForUser soft-revokes every live session of the user and
	// returns the revoked records so their access tokens can be blacklisted.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]Session, error)
}

// ResetTokenStore is the durable password-reset ledger.
type ResetTokenStore interface {
	Create(ctx context.Context, t *ResetToken) error
	GetByTokenHash(ctx context.Context, hash string) (*ResetToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	// DeleteUnusedForUser removes the user's outstanding unused tokens so at
	// most one reset token is live at a time.
	DeleteUnusedForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers transactional mail. The Engine calls it on a goroutine
// and never fails the parent operation on delivery errors.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, displayName, code, link string) error
	SendPasswordResetEmail(ctx context.Context, email, displayName, link string) error
	SendPasswordResetSuccessEmail(ctx context.Context, email, displayName string) error
}

// TwoFactorVerifier checks a second-factor code for a user. Implementations
// decide the factor (TOTP, SMS, hardware key). A nil verifier disables the
// 2FA short-circuit even for users with TwoFactorEnabled set.
type TwoFactorVerifier interface {
	Verify(ctx context.Context, userID, code string) (bool, error)
}

// PublicUser is the sanitized projection returned to callers. It never
// carries hashes, counters or consent flags.
type PublicUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	EmailVerified    bool       `json:"email_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func publicUser(u *User) *PublicUser {
	return &PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		EmailVerified:    u.EmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
	}
}

// RegisterInput is the Register request payload.
type RegisterInput struct {
	Email               string
	Password            string
	FirstName           string
	LastName            string
	TermsAccepted       bool
	KVKKConsentAccepted bool
}

// LoginResult is the Login outcome. When RequiresTwoFactor is set only
// ChallengeToken is populated; otherwise both tokens and User are.
type LoginResult struct {
	RequiresTwoFactor bool
	ChallengeToken    string
	AccessToken       string
	RefreshToken      string
	User              *PublicUser
}
