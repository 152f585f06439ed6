package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result describes one admission decision. Remaining and ResetAt feed the
// X-RateLimit response headers; RetryAfter is zero unless the hit was
// rejected.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter enforces sliding-window budgets keyed by {action, client IP}
// using Redis sorted sets. Trusted IPs bypass every budget.
type Limiter struct {
	redis   redis.UniversalClient
	prefix  string
	trusted map[string]struct{}
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, trustedIPs []string) *Limiter {
	trusted := make(map[string]struct{}, len(trustedIPs))
	for _, ip := range trustedIPs {
		trusted[ip] = struct{}{}
	}
	return &Limiter{
		redis:   redisClient,
		prefix:  prefix,
		trusted: trusted,
	}
}

// Prune, count and conditionally admit in one atomic step.
// KEYS[1] window zset
// ARGV[1] now (unix ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member
// Returns {allowed, count_after, oldest_score}.
const slidingWindowScript = `
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, cutoff)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  count = count + 1
  allowed = 1
end
local oldest_score = ARGV[1]
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  oldest_score = oldest[2]
end
return {allowed, count, oldest_score}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Allow records one hit against the {action, ip} window and reports whether
// it fits the budget. The hit itself is only recorded when admitted, so a
// rejected caller does not extend its own penalty.
func (l *Limiter) Allow(ctx context.Context, action, ip string, limit int, window time.Duration) (Result, error) {
	res := Result{Limit: limit}

	if _, ok := l.trusted[ip]; ok {
		res.Allowed = true
		res.Remaining = limit
		res.ResetAt = time.Now().Add(window)
		return res, nil
	}

	now := time.Now()
	key := l.key(action, ip)

	raw, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(raw) != 3 {
		return res, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	oldest := parseScore(raw[2])
	if oldest == 0 {
		oldest = now.UnixMilli()
	}

	res.Allowed = allowed == 1
	res.Remaining = limit - int(count)
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.ResetAt = time.UnixMilli(oldest).Add(window)

	if !res.Allowed {
		retry := res.ResetAt.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		res.RetryAfter = retry
	}

	return res, nil
}

// Reset clears the window for an {action, ip} pair.
func (l *Limiter) Reset(ctx context.Context, action, ip string) error {
	if err := l.redis.Del(ctx, l.key(action, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(action, ip string) string {
	return l.prefix + action + ":" + ip
}

func parseScore(v interface{}) int64 {
	switch s := v.(type) {
	case string:
		var ms float64
		if _, err := fmt.Sscanf(s, "%f", &ms); err != nil {
			return 0
		}
		return int64(ms)
	case int64:
		return s
	case float64:
		return int64(s)
	default:
		return 0
	}
}
