package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/pkg/logger"
	"go.uber.org/zap"
)

// Recovery returns a gin middleware for panic recovery
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return RecoveryWithMultiLogger(log, nil)
}

// RecoveryWithMultiLogger also records panics in the error category
func RecoveryWithMultiLogger(log *zap.Logger, ml *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := []zap.Field{
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("client_ip", c.ClientIP()),
				}
				log.Error("Panic recovered", fields...)
				if ml != nil {
					ml.LogAppError("Panic recovered", fields...)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
