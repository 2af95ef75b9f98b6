package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/logging"
)

// slidingWindowScript implements a sliding window rate limiter using Redis
// sorted sets. Returns: [allowed (0/1), remaining, resetTimestampMs]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

-- Remove entries outside the window
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

-- Count current entries
local count = redis.call('ZCARD', key)

if count < limit then
    -- Add the current request
    redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
    redis.call('PEXPIRE', key, window)
    return {1, limit - count - 1, now + window}
else
    -- Rejected
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset = now + window
    if #oldest >= 2 then
        reset = tonumber(oldest[2]) + window
    end
    return {0, 0, reset}
end
`)

// RedisLimiter is the distributed backend used when several gateway
// replicas must share one budget per source.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		prefix: "gw:rl:",
		max:    max,
		window: window,
	}
}

// Allow runs the sliding window script for key. If Redis is unreachable
// the limiter fails open so an outage does not take the gateway down.
func (rl *RedisLimiter) Allow(key string) (bool, int, time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	nowMs := time.Now().UnixMilli()
	windowMs := rl.window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rl.prefix + key},
		nowMs,
		windowMs,
		rl.max,
	).Int64Slice()

	if err != nil || len(result) != 3 {
		logging.Warn("redis rate limit unavailable, failing open", zap.Error(err))
		return true, rl.max, time.Now().Add(rl.window)
	}

	return result[0] == 1, int(result[1]), time.UnixMilli(result[2])
}

var _ Limiter = (*RedisLimiter)(nil)
