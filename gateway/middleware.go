package gateway

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-job/engine"
)

// LoggerMiddleware logs every request through the engine logger.
func LoggerMiddleware(logger engine.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		l := logger.WithContext(c.Request.Context())
		if fl, ok := l.(engine.FieldsLogger); ok {
			l = fl.WithFields(map[string]any{
				"status":  c.Writer.Status(),
				"method":  c.Request.Method,
				"path":    path,
				"ip":      c.ClientIP(),
				"latency": latency.String(),
			})
		}
		l.Debug("http request %s %s %d", c.Request.Method, path, c.Writer.Status())

		for _, e := range c.Errors {
			l.Error("request error: %v", e.Err)
		}
	}
}
