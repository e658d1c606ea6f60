package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/sirupsen/logrus"
)

// ErrorLogger logs requests that recorded gin errors or ended with a 5xx.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) == 0 && status < 500 {
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"field":          "http",
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         status,
			"latency_ms":     time.Since(start).Milliseconds(),
			"correlation_id": cid,
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Error("request failed")
	}
}
