package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
)

// SessionMiddleware rejects tokens that were logged out. Runs after AuthMiddleware.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.Next()
			return
		}
		revoked, err := models.IsTokenRevoked(c.Request.Context(), token)
		if err != nil {
			// redis trouble must not lock everyone out
			config.LogError(config.GetLogger(), "middlewares", "SessionMiddleware", "IsTokenRevoked", nil, err)
		}
		if revoked {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
