package kimlik

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kimlik-auth/kimlik/internal"
	"github.com/kimlik-auth/kimlik/token"
)

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is never reissued; when it expires the user logs in
// again. The session is located by the token's digest, so a forged JWT with
// a valid signature but no backing session still fails.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (accessToken string, err error) {
	if err := e.checkClosed(); err != nil {
		return "", err
	}

	claims, err := e.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return "", mapTokenErr(err)
	}

	session, err := e.sessions.GetByTokenHash(ctx, internal.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			e.emit(ctx, AuditEvent{EventType: AuditRefresh, UserID: claims.Subject, Error: ErrTokenInvalid.Error()})
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("%w: lookup session: %v", ErrInternal, err)
	}

	now := time.Now()
	if session.Revoked {
		e.metrics.Inc(MetricRefreshFailure)
		e.emit(ctx, AuditEvent{EventType: AuditRefresh, UserID: session.UserID, SessionID: session.ID, Error: ErrTokenRevoked.Error()})
		return "", ErrTokenRevoked
	}
	if now.After(session.ExpiresAt) {
		e.metrics.Inc(MetricRefreshFailure)
		e.emit(ctx, AuditEvent{EventType: AuditRefresh, UserID: session.UserID, SessionID: session.ID, Error: ErrTokenExpired.Error()})
		return "", ErrTokenExpired
	}

	user, err := e.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	if statusErr := checkAccountStatus(user, now); statusErr != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emit(ctx, AuditEvent{EventType: AuditRefresh, UserID: user.ID, SessionID: session.ID, Error: statusErr.Error()})
		return "", statusErr
	}

	newAccess, jti, err := e.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("%w: issue access token: %v", ErrInternal, err)
	}
	if err := e.blacklist.TrackIssued(ctx, user.ID, jti, now.Add(e.tokens.AccessTTL())); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{EventType: AuditRefresh, UserID: user.ID, SessionID: session.ID, Success: true})
	return newAccess, nil
}
