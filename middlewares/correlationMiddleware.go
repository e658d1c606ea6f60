package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hohbackend/budget_backend/utils"
)

const CorrelationHeader = "X-Correlation-Id"

// CorrelationMiddleware carries the caller's correlation id, or a new one, into the
// request context. Outbox events written by the request inherit it.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationHeader)
		if cid == "" || len(cid) > 64 {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(CorrelationHeader, cid)
		c.Next()
	}
}
