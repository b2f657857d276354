package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientEntry tracks one client IP's limiter and when it was last seen so
// stale entries can be pruned.
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client-IP token bucket to the public
// verification endpoint. Tokens are spent per request; anonymous callers
// probing for valid verification tokens get throttled long before they can
// enumerate anything useful.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
}

// NewRateLimiter creates a limiter allowing perMinute requests per client IP
// with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		clients: make(map[string]*clientEntry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		maxIdle: 10 * time.Minute,
	}
}

// Middleware returns a gin handler enforcing the limit, keyed by ClientIP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      false,
				"message": "too many verification requests, try again later",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.clients[ip]
	if !ok {
		rl.prune(now)
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// prune drops entries idle longer than maxIdle. Called with mu held, only
// when a new client appears, so steady-state traffic pays nothing.
func (rl *RateLimiter) prune(now time.Time) {
	for ip, entry := range rl.clients {
		if now.Sub(entry.lastSeen) > rl.maxIdle {
			delete(rl.clients, ip)
		}
	}
}
