package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

// RateLimiter is a fixed window limiter keyed by caller. Idle keys are swept
// while allowing, so no background goroutine is needed.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*window
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimiter allows limit requests per key and window
func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  per,
		now:     time.Now,
	}
}

// Allow reports whether key may make another request and how many remain
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	w, ok := rl.clients[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{remaining: rl.limit, resetAt: now.Add(rl.window)}
		rl.clients[key] = w
	}
	if w.remaining == 0 {
		return false, 0
	}
	w.remaining--
	return true, w.remaining
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.clients {
		if !now.Before(w.resetAt) {
			delete(rl.clients, key)
		}
	}
}

// RateLimit limits by client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByTenant limits by the authenticated tenant, falling back to the
// client IP. It must run after the JWT middleware.
func RateLimitByTenant(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			return "tenant:" + tenantID
		}
		return c.ClientIP()
	})
}

// RateLimitByKey returns a rate limiting middleware with custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}
