package kimlik

import (
	"errors"
	"time"
)

// Config carries every tunable of the Engine. Resolve it once at startup,
// validate it through [Builder.Build], and treat it as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	RateLimit     RateLimitConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	TwoFactor     TwoFactorConfig
	Links         LinkConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. Ed25519 is the default signing
// method; keys may be raw key bytes or PEM blocks.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the attempt-based account lock. After MaxAttempts
// consecutive failures the account locks for LockDuration. A successful
// login resets the counter.
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy is one sliding-window budget: at most Limit events per Window.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-action budgets keyed by client IP.
// TrustedIPs bypass every budget (internal health checks, office NAT).
type RateLimitConfig struct {
	Enabled              bool
	RedisPrefix          string
	TrustedIPs           []string
	Register             RatePolicy
	Login                RatePolicy
	Refresh              RatePolicy
	PasswordResetRequest RatePolicy
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls the email verification challenge.
type VerificationConfig struct {
	TokenTTL time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls the reset token lifecycle.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

/*
====================================
TWO FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the login challenge issued for accounts with a
// second factor enrolled.
type TwoFactorConfig struct {
	ChallengeTTL time.Duration
	RedisPrefix  string
}

/*
====================================
LINK CONFIG
====================================
*/

// LinkConfig provides the public base URL embedded in outbound mail.
type LinkConfig struct {
	// BaseURL is the public frontend origin, without a trailing slash.
	BaseURL string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is saturated.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults. Callers still must supply
// signing keys and the public base URL.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "kimlik",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Lockout: LockoutConfig{
			MaxAttempts:  5,
			LockDuration: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:              true,
			RedisPrefix:          "kimlik:rl:",
			Register:             RatePolicy{Limit: 5, Window: time.Hour},
			Login:                RatePolicy{Limit: 10, Window: 15 * time.Minute},
			Refresh:              RatePolicy{Limit: 10, Window: time.Hour},
			PasswordResetRequest: RatePolicy{Limit: 3, Window: time.Hour},
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			ChallengeTTL: 5 * time.Minute,
			RedisPrefix:  "kimlik:2fa:",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the Engine cannot operate under.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT.RefreshTTL must exceed JWT.AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("JWT.SigningMethod must be ed25519 or hs256")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT.PrivateKey is required")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password.MinLength must be >= 8")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout.MaxAttempts must be >= 1")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout.LockDuration must be positive")
	}
	if c.RateLimit.Enabled {
		for _, p := range []RatePolicy{
			c.RateLimit.Register,
			c.RateLimit.Login,
			c.RateLimit.Refresh,
			c.RateLimit.PasswordResetRequest,
		} {
			if p.Limit < 1 || p.Window <= 0 {
				return errors.New("RateLimit policies require Limit >= 1 and a positive Window")
			}
		}
	}
	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification.TokenTTL must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset.TokenTTL must be positive")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("TwoFactor.ChallengeTTL must be positive")
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.TrustedIPs != nil {
		out.RateLimit.TrustedIPs = append([]string(nil), cfg.RateLimit.TrustedIPs...)
	}
	return out
}
