package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// RateLimit rejects clients the gate does not admit, keyed by client IP
func RateLimit(gate domain.RateGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gate != nil && !gate.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
