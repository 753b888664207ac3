package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles the exchange API per caller using a fixed window
// counter in Redis. Authenticated callers are keyed by user id so a user
// hopping networks cannot reset their budget; anonymous traffic falls back
// to the client IP.
type RateLimiter struct {
	redis  *redis.Client
	max    int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, max int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		max:    max,
		window: window,
	}
}

// Middleware enforces the request budget; over-limit calls get a 429.
// When Redis is unavailable requests pass through (rate limiting is a
// shield, not a dependency).
func (r *RateLimiter) Middleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]any{
				"success": false,
				"error":   "Access denied",
			})
		}

		var key string
		if e.Auth != nil {
			key = fmt.Sprintf("ratelimit:user:%s", e.Auth.Id)
		} else {
			key = fmt.Sprintf("ratelimit:ip:%s", e.RealIP())
		}

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, r.window)
			}
			if count > r.max {
				return e.JSON(http.StatusTooManyRequests, map[string]any{
					"success": false,
					"error":   "Rate limit exceeded. Please try again later.",
				})
			}
		}

		return e.Next()
	}
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
