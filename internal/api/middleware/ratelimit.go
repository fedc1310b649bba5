package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MayerS22/Taskify/internal/pkg/metrics"
	"github.com/MayerS22/Taskify/internal/pkg/ratelimit"
)

// RateLimit throttles a route per client IP using the redis token bucket.
// A redis failure lets the request through: the limiter protects against
// brute force, it must not take the auth endpoints down with it.
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, waitMs, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.Inc()
			retryAfter := (waitMs + 999) / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
