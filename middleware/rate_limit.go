package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/attachguard/config"
	"github.com/cppla/attachguard/utils"
)

const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
}

// NewIPRateLimiter allows perMinute requests per IP with a burst of half that.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	perMinute = maxInt(perMinute, 1)
	return &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   maxInt(perMinute/2, 1),
	}
}

// Allow consumes a token for key.
func (l *IPRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.clients, k)
		}
	}
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// Middleware rejects requests over the limit with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !l.Allow(ctx.ClientIP()) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

// RateLimitMiddleware guards the heavy pipeline endpoints using the configured per-minute budget.
func RateLimitMiddleware() gin.HandlerFunc {
	return NewIPRateLimiter(config.Get().RateLimitPerMinute).Middleware()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
