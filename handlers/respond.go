package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
)

// writeError maps the store's error taxonomy onto HTTP statuses.
// Anything unexpected is logged and answered with a generic 500.
func writeError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, utils.ErrorConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUserDisabled), errors.Is(err, utils.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUserNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		config.LogError(config.GetLogger(), "handlers", c.HandlerName(), c.Request.Method+" "+c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &v, true
}

func queryString(c *gin.Context, name string) *string {
	if v, ok := c.GetQuery(name); ok && v != "" {
		return &v
	}
	return nil
}

func queryLimit(c *gin.Context, fallback int) int {
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		return v
	}
	return fallback
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

// actor is the free-text identity recorded on history rows for API writes.
func actor(c *gin.Context) string {
	return utils.ActorFromContext(c.Request.Context())
}
