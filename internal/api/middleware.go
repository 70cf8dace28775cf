package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Laira/pkg/ratelimiter"
)

// RateLimitMiddleware rejects requests once the limiter runs dry.
func RateLimitMiddleware(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}
