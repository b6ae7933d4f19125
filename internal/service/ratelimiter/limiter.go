// Package ratelimiter provides a Redis fixed-window counter used to
// fast-fail PDF generation requests from free-tier users before a job
// row is ever written. The counter is advisory. The job handler
// re-checks the cap against the database, which stays authoritative,
// so the limiter is allowed to fail open when Redis is unavailable.
package ratelimiter

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mintcal/mintcal/internal/domain"
)

type Context = domain.Context

// Decision reports the outcome of a window check.
type Decision struct {
	Allowed bool
	// Count is the number of requests observed in the current window,
	// including this one.
	Count int64
	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter is the quota check consumed by the enqueue path.
type Limiter interface {
	// Allow records one request under key and reports whether the
	// caller is still within limit requests for the current window.
	Allow(ctx Context, key string, limit int64) (Decision, error)
}

// FixedWindow counts requests per key in Redis over a fixed window.
// The first request of a window creates the key with a TTL equal to
// the window, so the count resets on expiry rather than on a sliding
// boundary.
type FixedWindow struct {
	redis  *redis.Client
	window time.Duration
	script *redis.Script
}

// windowScript increments the counter and stamps the window TTL
// atomically. The TTL repair branch covers keys created by an INCR
// that raced a previous EXPIRE failure, which would otherwise count
// forever.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("EXPIRE", key, window)
end

local ttl = redis.call("TTL", key)
if ttl < 0 then
  redis.call("EXPIRE", key, window)
  ttl = window
end

local allowed = 0
if count <= limit then
  allowed = 1
end
return {allowed, count, ttl}
`)

// NewFixedWindow builds a limiter over the given Redis client. A nil
// client is legal and yields a limiter that always allows, so the API
// can run without Redis in development.
func NewFixedWindow(rdb *redis.Client, window time.Duration) *FixedWindow {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &FixedWindow{
		redis:  rdb,
		window: window,
		script: windowScript,
	}
}

// Allow implements Limiter.
//
// Fail open on Redis errors to avoid hard outages: the caller falls
// back to the database count, which is the source of truth anyway.
func (l *FixedWindow) Allow(ctx Context, key string, limit int64) (Decision, error) {
	if l == nil || l.redis == nil {
		return Decision{Allowed: true}, nil
	}
	if limit <= 0 {
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}

	res, err := l.script.Run(ctx, l.redis, []string{key},
		limit, int64(l.window.Seconds())).Result()
	if err != nil {
		slog.Error("rate limiter redis error, failing open",
			slog.String("key", key), slog.Any("error", err))
		return Decision{Allowed: true}, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		slog.Error("rate limiter unexpected script reply, failing open",
			slog.String("key", key))
		return Decision{Allowed: true}, nil
	}

	d := Decision{
		Allowed: toInt64(vals[0]) == 1,
		Count:   toInt64(vals[1]),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(toInt64(vals[2])) * time.Second
	}
	return d, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		var out int64
		for _, c := range n {
			if c < '0' || c > '9' {
				return 0
			}
			out = out*10 + int64(c-'0')
		}
		return out
	default:
		return 0
	}
}
