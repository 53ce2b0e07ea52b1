package ratelimit

import (
	"net/http"
	"strconv"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/gin-gonic/gin"
)

// Middleware rejects clients over their per-minute budget with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.AllowClient(c.Request.Context(), c.ClientIP())
		if err != nil {
			// never block on limiter failure
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited()
			}
			retryAfter := max(int(result.RetryAfter.Seconds()), 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			appErr := apperrors.NewValidationError("rate limit exceeded", "retry_after_seconds", retryAfter)
			appErr.HTTPStatus = http.StatusTooManyRequests
			appErr.RequestID = c.GetString("request_id")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr)
			return
		}

		c.Next()
	}
}
