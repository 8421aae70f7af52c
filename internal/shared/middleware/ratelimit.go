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
	"github.com/storefront/server/internal/shared/response"
	"go.uber.org/zap"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	Limit     int64
}

// Limiter checks a sliding window request limit for a key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// slidingWindowScript trims entries older than the window, counts what is
// left and records the new request when it fits.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local expiry = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current >= limit then
		return {0, 0}
	end

	redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
	redis.call('PEXPIRE', key, expiry)
	return {1, limit - current - 1}
`)

// RedisLimiter keeps one sorted set per key so limits hold across instances.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a Redis backed limiter.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{redis: client, prefix: prefix}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	result, err := slidingWindowScript.Run(ctx, r.redis, []string{r.prefix + ":" + key},
		now.Add(-window).UnixNano(),
		now.UnixNano(),
		limit,
		window.Milliseconds()+60000,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	remaining := result[1]
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: result[0] == 1, Remaining: remaining, Limit: limit}, nil
}

// MemoryLimiter is the single-instance Limiter used when Redis is absent.
// Keys whose hits have all expired are swept at most once per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)
	if now.Sub(m.lastSweep) >= window {
		m.sweep(cutoff)
		m.lastSweep = now
	}

	kept := prune(m.hits[key], cutoff)
	if int64(len(kept)) >= limit {
		m.store(key, kept)
		return &RateLimitResult{Allowed: false, Limit: limit}, nil
	}
	kept = append(kept, now)
	m.hits[key] = kept
	return &RateLimitResult{Allowed: true, Remaining: limit - int64(len(kept)), Limit: limit}, nil
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func (m *MemoryLimiter) sweep(cutoff time.Time) {
	for key, hits := range m.hits {
		m.store(key, prune(hits, cutoff))
	}
}

func (m *MemoryLimiter) store(key string, hits []time.Time) {
	if len(hits) == 0 {
		delete(m.hits, key)
		return
	}
	m.hits[key] = hits
}

// prune drops hits at or before cutoff, reusing the backing array.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per window.
	Limit int64
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc generates the rate limit key. Defaults to client IP.
	KeyFunc func(*gin.Context) string
}

// RateLimit returns a middleware that limits requests with the given limiter.
// A nil limiter or a non-positive limit disables it. Limiter failures let the
// request through.
func RateLimit(limiter Limiter, cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		if limiter == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), cfg.KeyFunc(c), cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header(RateLimitLimit, strconv.FormatInt(result.Limit, 10))
		c.Header(RateLimitRemaining, strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			c.Header(RetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimitByUser keys on the authenticated user and falls back to client IP.
func RateLimitByUser(c *gin.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
