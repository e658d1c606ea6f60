package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
)

// AuthMiddleware resolves a bearer token into the request context.
// Requests without a token pass through; RequireAuth rejects them on protected routes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token == "" || token == auth {
			abortUnauthorized(c)
			return
		}

		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			abortUnauthorized(c)
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			abortUnauthorized(c)
			return
		}

		user, err := models.GetUserByEmail(c.Request.Context(), claim.Email)
		if err != nil || !user.IsActive || user.ID != claim.ID {
			abortUnauthorized(c)
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUsernameInContext(ctx, user.Email)
		ctx = utils.SetUserNameInContext(ctx, user.FullName())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
