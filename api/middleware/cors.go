package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CorrelationHeader carries the correlation id on fetch responses
const CorrelationHeader = "X-Correlation-ID"

// CORS allows browser clients and exposes the headers they need to track a fetch
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+CorrelationHeader)
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Length, "+CorrelationHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
