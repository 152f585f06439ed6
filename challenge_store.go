package kimlik

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kimlik-auth/kimlik/internal"
)

var (
	errChallengeNotFound = errors.New("login challenge not found")
	errChallengeBackend  = errors.New("login challenge backend unavailable")
)

// challengeStore holds pending two-factor login challenges in Redis. The
// caller receives the raw challenge token; only its digest is keyed, so a
// Redis dump never leaks usable challenges. Entries expire with the
// configured challenge TTL and are consumed atomically on first use.
type challengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newChallengeStore(redisClient redis.UniversalClient, prefix string) *challengeStore {
	if prefix == "" {
		prefix = "kimlik:2fa:"
	}
	return &challengeStore{redis: redisClient, prefix: prefix}
}

func (s *challengeStore) key(rawToken string) string {
	return s.prefix + internal.HashToken(rawToken)
}

// Issue creates a challenge bound to the user and returns the raw token.
func (s *challengeStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	raw, err := internal.NewToken()
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(raw), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return raw, nil
}

// Consume resolves and deletes a challenge in one round-trip. A missing or
// expired challenge returns errChallengeNotFound.
func (s *challengeStore) Consume(ctx context.Context, rawToken string) (string, error) {
	userID, err := s.redis.GetDel(ctx, s.key(rawToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errChallengeNotFound
		}
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	if userID == "" {
		return "", errChallengeNotFound
	}
	return userID, nil
}
