package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable reports a failed Redis round-trip.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Revocation reasons recorded alongside blacklisted token IDs.
const (
	ReasonLogout        = "logout"
	ReasonPasswordReset = "password_reset"
	ReasonSessionSweep  = "session_sweep"
)

// Blacklist is the Redis-backed revoked-token index.
type Blacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Blacklist] with the given key prefix.
func New(redisClient redis.UniversalClient, prefix string) *Blacklist {
	if prefix == "" {
		prefix = "kimlik:bl:"
	}
	return &Blacklist{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Revoke voids a single token ID for ttl, which must be the token's
// remaining lifetime. Non-positive TTLs are skipped: the token is already
// dead on its own.
func (b *Blacklist) Revoke(ctx context.Context, jti, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.jtiKey(jti), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token ID has been voided.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := b.redis.Get(ctx, b.jtiKey(jti)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

// TrackIssued records an outstanding access token in the user's index,
// scored by its expiry, so it can be found later by RevokeAllForUser.
func (b *Blacklist) TrackIssued(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	key := b.userKey(userID)
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(expiresAt.Unix()),
			Member: jti,
		})
		// The index only ever needs to outlive its youngest member.
		pipe.ExpireAt(ctx, key, expiresAt.Add(time.Minute))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForUser voids every outstanding access token of the user and
// clears the index. Already-expired entries are pruned, not blacklisted.
// It returns the number of tokens voided.
func (b *Blacklist) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	key := b.userKey(userID)
	now := time.Now()

	if err := b.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Unix(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries, err := b.redis.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	_, err = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range entries {
			jti, ok := entry.Member.(string)
			if !ok {
				continue
			}
			ttl := time.Unix(int64(entry.Score), 0).Sub(now)
			if ttl <= 0 {
				continue
			}
			pipe.Set(ctx, b.jtiKey(jti), reason, ttl)
		}
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(entries), nil
}

func (b *Blacklist) jtiKey(jti string) string {
	return b.prefix + "jti:" + jti
}

func (b *Blacklist) userKey(userID string) string {
	return b.prefix + "user:" + userID
}
