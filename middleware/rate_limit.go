package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/cppla/blogposts/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// memoryLimiters holds one token bucket per client IP for a single process.
type memoryLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

// RateLimitMiddleware limits requests per client IP to perMinute. With a Redis
// client the count is shared across instances in a fixed one-minute window;
// without one a per-process token bucket is used.
func RateLimitMiddleware(perMinute int, rc *redis.Client) gin.HandlerFunc {
	perMinute = max(perMinute, 1)
	if rc != nil {
		return redisRateLimit(perMinute, rc)
	}

	ml := &memoryLimiters{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
	}
	return func(ctx *gin.Context) {
		if !ml.allow(ctx.ClientIP()) {
			rejectRateLimited(ctx)
			return
		}
		ctx.Next()
	}
}

func redisRateLimit(perMinute int, rc *redis.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		window := time.Now().Unix() / 60
		key := fmt.Sprintf("ratelimit:%s:%d", ctx.ClientIP(), window)

		c, cancel := context.WithTimeout(ctx.Request.Context(), 500*time.Millisecond)
		defer cancel()
		pipe := rc.TxPipeline()
		incr := pipe.Incr(c, key)
		pipe.Expire(c, key, time.Minute)
		if _, err := pipe.Exec(c); err != nil {
			// fail-open: an unavailable Redis must not take the write routes down
			utils.Sugar.Warnf("rate limit counter failed key=%s err=%v", key, err)
			ctx.Next()
			return
		}
		if incr.Val() > int64(perMinute) {
			rejectRateLimited(ctx)
			return
		}
		ctx.Next()
	}
}

func (m *memoryLimiters) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, l := range m.limiters {
		if now.After(l.expires) {
			delete(m.limiters, k)
		}
	}

	l, ok := m.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[key] = l
	}
	l.expires = now.Add(5 * time.Minute)
	return l.limiter.Allow()
}

func rejectRateLimited(ctx *gin.Context) {
	utils.Message(ctx, http.StatusTooManyRequests, "rate limit exceeded")
	ctx.Abort()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
