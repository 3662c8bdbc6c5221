package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"cvlm/internal/api/middleware"
	"cvlm/internal/errcode"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// GenerationRateLimit 限制每个用户每小时的生成请求数，limit 不大于 0 时不限制。
// Redis 不可用时放行。
func GenerationRateLimit(client redisRateCounter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || client == nil {
			c.Next()
			return
		}
		user, ok := middleware.CurrentUser(c)
		if !ok {
			AbortUnauthorized(c)
			return
		}

		rateKey := "rate:generate:" + user.ID + ":" + time.Now().UTC().Format("2006010215")
		count, err := incrWithTTL(c.Request.Context(), client, rateKey, time.Hour)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("rate counter unavailable", slog.Any("error", err))
			count = 0
		}
		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": errcode.RateLimited})
			return
		}
		c.Next()
	}
}
