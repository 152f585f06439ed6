package rate

import "errors"

// ErrRedisUnavailable reports a failed Redis round-trip.
var ErrRedisUnavailable = errors.New("redis unavailable")
