package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/pkg/logger"
	"go.uber.org/zap"
)

// Logger returns a gin middleware for logging
func Logger(log *zap.Logger) gin.HandlerFunc {
	return LoggerWithMultiLogger(log, nil)
}

// LoggerWithMultiLogger also copies server errors into the error category
func LoggerWithMultiLogger(log *zap.Logger, ml *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", clientIP),
		}
		if id := c.Writer.Header().Get(CorrelationHeader); id != "" {
			fields = append(fields, zap.String("id", id))
		}

		log.Info("HTTP request", fields...)

		if statusCode >= 500 && ml != nil {
			ml.LogAppError("HTTP error response", fields...)
		}
	}
}
