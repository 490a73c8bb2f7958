package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/infrastructure/ratelimit"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// RateLimitMiddleware meters requests per client IP. Limiter failures let
// the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		res, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Error(c.Request.Context(), "rate limiter failed", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			log.Warn(c.Request.Context(), "rate limit exceeded", logger.String("client_ip", ip))
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			dto.SendError(c, errors.ErrRateLimited(res.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}
