package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/middleware"
)

// NewFromConfig builds the limiter backend selected by configuration.
func NewFromConfig(cfg config.RateLimitConfig, redisCfg config.RedisConfig) Limiter {
	if cfg.Strategy == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Address,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		return NewRedisLimiter(client, cfg.Max, cfg.Window)
	}
	return NewSlidingWindowCounter(cfg.Max, cfg.Window)
}

// Middleware enforces the per-source budget. Keys are client source
// addresses; breaches answer 429 with rate limit headers.
func Middleware(limiter Limiter, max int, onReject func()) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := middleware.SourceAddr(r)

			allowed, remaining, resetTime := limiter.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				if onReject != nil {
					onReject()
				}
				errors.ErrRateLimited.WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
