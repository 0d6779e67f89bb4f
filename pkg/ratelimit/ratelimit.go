// Package ratelimit applies a per-client token bucket to gin routes.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ratefeed/pkg/metrics"
)

// Config sizes the per-client buckets. Clients idle longer than MaxAge are
// dropped, checked at most once per CleanupInterval.
type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             10,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Limiter holds one token bucket per client IP. Expired entries are swept
// during acquisition, there is no background goroutine to stop on shutdown.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}

	return &Limiter{
		cfg:       cfg,
		clients:   make(map[string]*client),
		lastSweep: time.Now(),
	}
}

// Middleware rejects requests over the per-client budget with 429 and
// stamps X-RateLimit headers on every response.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}

		bucket := l.acquire(ip)

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(l.cfg.RPS)))

		if !bucket.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		remaining := int(bucket.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// acquire returns the bucket for ip, creating it on first sight, and sweeps
// idle entries once the cleanup interval has elapsed.
func (l *Limiter) acquire(ip string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.CleanupInterval {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.cfg.MaxAge {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{bucket: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now

	return cl.bucket
}
