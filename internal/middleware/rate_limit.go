package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// ParseRate accepts "<limit>-<duration>", e.g. "30-1m" or "5-10s".
func ParseRate(s string) (limiter.Rate, error) {
	limitStr, periodStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %q", s)
	}
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid rate limit: %q", limitStr)
	}
	period, err := time.ParseDuration(periodStr)
	if err != nil || period <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid rate period: %q", periodStr)
	}
	return limiter.Rate{Limit: limit, Period: period}, nil
}

// NewLimiterStore returns a redis-backed store when rdb is set, otherwise an
// in-process one.
func NewLimiterStore(rdb *redis.Client, routeID string) (limiter.Store, error) {
	prefix := "rate_limiter:" + routeID
	if rdb == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}), nil
	}
	store, err := redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("redis limiter store for %s: %w", routeID, err)
	}
	return store, nil
}

// RateLimit limits requests per authenticated user, falling back to client IP.
func RateLimit(store limiter.Store, rate limiter.Rate) gin.HandlerFunc {
	return ginlimiter.NewMiddleware(limiter.New(store, rate),
		ginlimiter.WithKeyGetter(func(c *gin.Context) string {
			if id := c.GetInt64(ctxUserID); id != 0 {
				return "user:" + strconv.FormatInt(id, 10)
			}
			return "ip:" + c.ClientIP()
		}),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later")
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			_ = c.Error(err)
			response.Error(c, http.StatusServiceUnavailable, "UNAVAILABLE", "Rate limiter unavailable")
		}),
	)
}
