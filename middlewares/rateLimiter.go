package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window per-IP counter in Redis.
// A nil client means the process-wide client, looked up per request.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 600
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := rl.client
		if client == nil {
			client = config.GetRedisDB()
		}
		if client == nil {
			c.Next()
			return
		}
		key := "RateLimit:" + c.ClientIP()

		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(c.Request.Context(), key, rl.window)
		}
		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
