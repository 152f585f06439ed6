package kimlik

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kimlik-auth/kimlik/internal"
	"github.com/kimlik-auth/kimlik/internal/blacklist"
	"github.com/kimlik-auth/kimlik/internal/rate"
	"github.com/kimlik-auth/kimlik/password"
	"github.com/kimlik-auth/kimlik/token"
)

// Engine orchestrates every authentication protocol. Construct it through
// [Builder.Build]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	users    UserStore
	sessions SessionStore
	resets   ResetTokenStore

	notifier  Notifier
	twoFactor TwoFactorVerifier

	passwordHash *password.Argon2
	// decoyHash levels Login timing for unknown emails.
	decoyHash   string
	tokens      *token.Manager
	rateLimiter *rate.Limiter
	blacklist   *blacklist.Blacklist
	challenges  *challengeStore

	audit   *auditDispatcher
	metrics *Metrics

	closed   atomic.Bool
	notifyWG sync.WaitGroup
}

// Close flushes the audit buffer and waits for in-flight notifier sends.
// The Engine rejects new operations afterwards.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.notifyWG.Wait()
	e.audit.Close()
}

// AccessTokenTTL reports the configured access token lifetime, for
// transports that advertise expires_in.
func (e *Engine) AccessTokenTTL() time.Duration {
	return e.tokens.AccessTTL()
}

// MetricsSnapshot copies the engine counters. The audit-drop count rides
// along because it is the one dispatcher stat operators watch.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	snap := e.metrics.Snapshot()
	snap.AuditDropped = e.audit.Dropped()
	return snap
}

func (e *Engine) checkClosed() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

/*
====================================
RATE LIMITING
====================================
*/

// RateAction names one rate-limited operation.
type RateAction string

const (
	ActionRegister             RateAction = "register"
	ActionLogin                RateAction = "login"
	ActionRefresh              RateAction = "refresh"
	ActionPasswordResetRequest RateAction = "password-reset-request"
)

// RateResult mirrors one admission decision for HTTP header emission.
type RateResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// CheckRate records one hit for the action against the caller's IP (from
// [WithClientIP]) and reports the decision. With rate limiting disabled it
// always admits. Rejections are counted and audited here so transports only
// need to translate the result.
func (e *Engine) CheckRate(ctx context.Context, action RateAction) (RateResult, error) {
	if err := e.checkClosed(); err != nil {
		return RateResult{}, err
	}
	if !e.config.RateLimit.Enabled {
		return RateResult{Allowed: true}, nil
	}

	policy, ok := e.ratePolicy(action)
	if !ok {
		return RateResult{Allowed: true}, nil
	}

	ip := clientIPFromContext(ctx)
	res, err := e.rateLimiter.Allow(ctx, string(action), ip, policy.Limit, policy.Window)
	if err != nil {
		return RateResult{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if !res.Allowed {
		e.metrics.Inc(MetricRateLimitHit)
		e.emit(ctx, AuditEvent{
			EventType: AuditRateLimited,
			IP:        ip,
			Metadata:  map[string]string{"action": string(action)},
		})
	}

	return RateResult{
		Allowed:    res.Allowed,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
		ResetAt:    res.ResetAt,
	}, nil
}

func (e *Engine) ratePolicy(action RateAction) (RatePolicy, bool) {
	switch action {
	case ActionRegister:
		return e.config.RateLimit.Register, true
	case ActionLogin:
		return e.config.RateLimit.Login, true
	case ActionRefresh:
		return e.config.RateLimit.Refresh, true
	case ActionPasswordResetRequest:
		return e.config.RateLimit.PasswordResetRequest, true
	default:
		return RatePolicy{}, false
	}
}

/*
====================================
TOKEN VALIDATION
====================================
*/

// ValidateAccess verifies an access token and checks it against the
// blacklist. Transports use it to guard authenticated routes.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Parse(accessToken, token.TypeAccess)
	if err != nil {
		return nil, mapTokenErr(err)
	}

	revoked, err := e.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

/*
====================================
SHARED HELPERS
====================================
*/

// issueSession is the single issuance path shared by Login and
// ConfirmLogin2FA. It supersedes prior sessions, mints both tokens, records
// the session and tracks the access jti for later containment.
func (e *Engine) issueSession(ctx context.Context, u *User) (*LoginResult, error) {
	now := time.Now()

	revoked, err := e.sessions.RevokeAllForUser(ctx, u.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: revoke prior sessions: %v", ErrInternal, err)
	}
	if len(revoked) > 0 {
		if _, err := e.blacklist.RevokeAllForUser(ctx, u.ID, blacklist.ReasonSessionSweep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		e.metrics.Inc(MetricSessionRevoked)
	}

	accessToken, accessJTI, err := e.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: issue access token: %v", ErrInternal, err)
	}
	refreshToken, _, err := e.tokens.IssueRefresh(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: issue refresh token: %v", ErrInternal, err)
	}

	session := &Session{
		ID:               uuid.NewString(),
		UserID:           u.ID,
		RefreshTokenHash: internal.HashToken(refreshToken),
		AccessJTI:        accessJTI,
		IP:               clientIPFromContext(ctx),
		UserAgent:        userAgentFromContext(ctx),
		ExpiresAt:        now.Add(e.tokens.RefreshTTL()),
		CreatedAt:        now,
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrInternal, err)
	}
	e.metrics.Inc(MetricSessionCreated)

	if err := e.blacklist.TrackIssued(ctx, u.ID, accessJTI, now.Add(e.tokens.AccessTTL())); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if err := e.users.ResetLoginFailures(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("%w: reset login failures: %v", ErrInternal, err)
	}
	if err := e.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("%w: update last login: %v", ErrInternal, err)
	}
	u.LastLoginAt = &now

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         publicUser(u),
	}, nil
}

// checkAccountStatus enforces administrative and attempt-based blocks.
// Attempt locks expire on their own; administrative ones do not.
func checkAccountStatus(u *User, now time.Time) error {
	switch u.Status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusLocked:
		return ErrAccountLocked
	}
	if u.LockedUntil != nil && u.LockedUntil.After(now) {
		remaining := u.LockedUntil.Sub(now).Round(time.Minute)
		if remaining < time.Minute {
			remaining = time.Minute
		}
		return fmt.Errorf("%w: try again in %s", ErrAccountLocked, remaining)
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// sendMail runs one notifier call on a goroutine. Delivery failures are
// audited and never surface to the caller.
func (e *Engine) sendMail(email string, send func(ctx context.Context) error) {
	if e.notifier == nil {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			e.emit(ctx, AuditEvent{
				EventType: AuditMailFailure,
				Email:     email,
				Error:     err.Error(),
			})
		}
	}()
}

func mapTokenErr(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject the "Name <addr>" form; only bare addresses pass.
	return addr.Address == email
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
