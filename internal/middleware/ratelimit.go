package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces limiter counters in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RateLimit allows maxRequests per client IP per fixed window for one named
// scope. Counters live in Redis so every instance shares them. If Redis is
// unavailable the request is let through and the failure is logged.
func RateLimit(rdb *redis.Client, scope string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			count, err := hit(c.Request().Context(), rdb, scope, c.RealIP(), window)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("scope", scope),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"success": false,
					"error":   "rate_limited",
					"message": "Too many attempts. Please wait a moment and try again.",
				})
			}
			return next(c)
		}
	}
}

// hit increments the counter for ip in the current window and returns the
// new count. The first hit of a window sets its expiry.
func hit(ctx context.Context, rdb *redis.Client, scope, ip string, window time.Duration) (int64, error) {
	bucket := time.Now().UnixNano() / int64(window)
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitKeyPrefix, scope, ip, bucket)

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
