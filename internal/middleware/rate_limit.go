package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/safaritrails/booking-backend/internal/utils"
)

// BookingRateLimiter checks whether a client may create another booking;
// *services.RateLimitService implements it
type BookingRateLimiter interface {
	CheckBookingRateLimit(ctx context.Context, identifier string) error
}

// BookingRateLimit rejects booking requests over the limit with 429 and a
// Retry-After header. The client is the authenticated user when
// OptionalAuthMiddleware ran before it, otherwise the client IP.
func BookingRateLimit(limiter BookingRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if userCtx, ok := GetUserContext(c); ok {
			userID = userCtx.UserID.String()
		}

		err := limiter.CheckBookingRateLimit(c.Request.Context(), utils.ClientIdentifier(c, userID))
		if err == nil {
			c.Next()
			return
		}

		var rateErr *services.RateLimitError
		if errors.As(err, &rateErr) {
			c.Header("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds(time.Now())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": rateErr.Message,
				"details": gin.H{"limit": rateErr.Limit},
			})
			return
		}

		// Limiter errors are logged by the service; let the request through
		c.Next()
	}
}
