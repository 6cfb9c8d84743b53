package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/and161185/goph-talk/internal/errs"
)

// Defaults for the per-IP request cap on /api.
const (
	DefaultAPIRequests = 200
	DefaultAPIWindow   = 15 * time.Minute
)

// cors lets browser clients on any origin call the API. Preflight requests are
// answered here, before routing.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "600")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ipLimiter is a token bucket per client IP: burst n, refilled at n per window.
type ipLimiter struct {
	every rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(n int, window time.Duration) *ipLimiter {
	if n <= 0 {
		n = DefaultAPIRequests
	}
	if window <= 0 {
		window = DefaultAPIWindow
	}
	return &ipLimiter{
		every:   rate.Every(window / time.Duration(n)),
		burst:   n,
		ttl:     window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.ttl {
		// an idle bucket is full again after one window
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// rateLimit rejects requests beyond the client's budget with 429.
func (l *ipLimiter) rateLimit(c *gin.Context) {
	if !l.allow(c.ClientIP()) {
		fail(c, errs.ErrRateLimited)
		c.Abort()
		return
	}
	c.Next()
}
