package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
	Window() time.Duration
}

// RateLimiter is an in-process token bucket per key. Buckets left idle long
// enough to have refilled completely are dropped on the next sweep.
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	maxTokens    int
	refillRate   int           // tokens per refill
	refillPeriod time.Duration // how often to refill
	lastSweep    time.Time
	now          func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a token bucket limiter. Values below one are
// raised to one.
func NewRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *RateLimiter {
	if refillPeriod <= 0 {
		refillPeriod = time.Minute
	}
	return &RateLimiter{
		buckets:      make(map[string]*bucket),
		maxTokens:    max(maxTokens, 1),
		refillRate:   max(refillRate, 1),
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// NewPerMinuteLimiter allows perMinute requests per key, refilled in full
// every minute
func NewPerMinuteLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(perMinute, perMinute, time.Minute)
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[key] = b
	}

	if refills := int(now.Sub(b.lastRefill) / rl.refillPeriod); refills > 0 {
		b.tokens = min(b.tokens+refills*rl.refillRate, rl.maxTokens)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, b.tokens, nil
	}
	return false, 0, nil
}

// sweep runs at most once per refill period. mu must be held.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.refillPeriod {
		return
	}
	rl.lastSweep = now

	periods := (rl.maxTokens + rl.refillRate - 1) / rl.refillRate
	idle := time.Duration(periods) * rl.refillPeriod
	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) >= idle {
			delete(rl.buckets, key)
		}
	}
}

// Len reports how many keys are currently tracked
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) Limit() int            { return rl.maxTokens }
func (rl *RateLimiter) Window() time.Duration { return rl.refillPeriod }

// RedisLimiter is a fixed-window counter shared by every API replica
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:generator:"}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	bucket := time.Now().UnixNano() / int64(rl.window)
	redisKey := fmt.Sprintf("%s%s:%d", rl.prefix, key, bucket)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	if count > rl.limit {
		return false, 0, nil
	}
	return true, rl.limit - count, nil
}

func (rl *RedisLimiter) Limit() int            { return rl.limit }
func (rl *RedisLimiter) Window() time.Duration { return rl.window }

// RateLimit rejects callers over their budget with 429. The key is the
// caller identity when known, otherwise the client IP. Limiter errors let
// the request through.
func RateLimit(l Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + userID
		}

		allowed, remaining, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(l.Window().Seconds())))
			RespondError(c, http.StatusTooManyRequests, ErrCodeRateLimited, MsgRateLimited)
			return
		}
		c.Next()
	}
}
