package kimlik

import (
	"context"
	"fmt"
	"time"

	"github.com/kimlik-auth/kimlik/internal/blacklist"
	"github.com/kimlik-auth/kimlik/token"
)

// Logout voids the presented access token for its remaining lifetime and
// revokes every session of the subject, including tracked access tokens
// issued through Refresh. An already blacklisted token fails with
// [ErrTokenRevoked], so logout cannot be replayed.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	claims, err := e.tokens.Parse(accessToken, token.TypeAccess)
	if err != nil {
		return mapTokenErr(err)
	}

	revoked, err := e.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if revoked {
		return ErrTokenRevoked
	}

	now := time.Now()
	if claims.ExpiresAt != nil {
		ttl := claims.ExpiresAt.Time.Sub(now)
		if err := e.blacklist.Revoke(ctx, claims.ID, blacklist.ReasonLogout, ttl); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}

	if _, err := e.blacklist.RevokeAllForUser(ctx, claims.Subject, blacklist.ReasonLogout); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if _, err := e.sessions.RevokeAllForUser(ctx, claims.Subject, now); err != nil {
		return fmt.Errorf("%w: revoke sessions: %v", ErrInternal, err)
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.emit(ctx, AuditEvent{EventType: AuditLogout, UserID: claims.Subject, Success: true})
	return nil
}
