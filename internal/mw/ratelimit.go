package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client IP.
type clientLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.RLock()
	limiter, ok := c.limiters[ip]
	c.mu.RUnlock()
	if ok {
		return limiter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if limiter, ok = c.limiters[ip]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(c.r, c.b)
	c.limiters[ip] = limiter
	return limiter
}

// RateLimiter is a middleware for per-IP rate limiting of the diagnostics
// API.
func RateLimiter(r rate.Limit, burst int) gin.HandlerFunc {
	limiters := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        burst,
	}
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
