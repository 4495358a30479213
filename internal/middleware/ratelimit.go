package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures one fixed-window limiter
type RateLimitConfig struct {
	// Scope separates the counters of independent limiters
	Scope   string
	Window  time.Duration
	Max     int
	Message string
	// Now defaults to time.Now
	Now func() time.Time
}

const defaultRateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimit counts requests per client IP in fixed windows stored in Redis.
// Requests are let through when Redis is unavailable.
func RateLimit(rdb redis.Cmdable, cfg RateLimitConfig) fiber.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Message == "" {
		cfg.Message = defaultRateLimitMessage
	}
	retryAfter := int64(cfg.Window.Seconds())

	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		now := cfg.Now()
		windowStart := now.Truncate(cfg.Window)
		key := fmt.Sprintf("rl:%s:%s:%d", cfg.Scope, c.IP(), windowStart.Unix())
		ctx := c.UserContext()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logging.LogError(logging.FromContext(ctx), "rate limit check failed", err)
			return c.Next()
		}
		if count == 1 {
			rdb.Expire(ctx, key, cfg.Window)
		}

		reset := windowStart.Add(cfg.Window)
		remaining := int64(cfg.Max) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("RateLimit-Limit", strconv.Itoa(cfg.Max))
		c.Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Set("RateLimit-Reset", strconv.FormatInt(int64(reset.Sub(now).Seconds()), 10))

		if count > int64(cfg.Max) {
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return c.Status(429).JSON(fiber.Map{
				"error":      "Rate limit exceeded",
				"message":    cfg.Message,
				"retryAfter": retryAfter,
			})
		}

		return c.Next()
	}
}
