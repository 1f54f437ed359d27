package authn

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipRecord is one source IP's token bucket plus its sustained-violation
// block state.
type ipRecord struct {
	limiter   *rate.Limiter
	blockedAt time.Time
	blocked   bool
}

// RateLimiter enforces a per-source-IP token bucket: refillPerMinute
// tokens per minute, up to burst tokens banked. Sustained violations (the
// bucket empty for blockDuration) block the IP outright until it elapses.
type RateLimiter struct {
	mu             sync.Mutex
	records        map[string]*ipRecord
	refillPerMinute float64
	burst          int
	blockDuration  time.Duration
}

// NewRateLimiter builds a limiter from its per-minute refill rate and burst
// capacity (== the configured rate_limit_per_minute).
func NewRateLimiter(refillPerMinute float64, burst int, blockDuration time.Duration) *RateLimiter {
	if blockDuration == 0 {
		blockDuration = 5 * time.Minute
	}
	return &RateLimiter{
		records:         make(map[string]*ipRecord),
		refillPerMinute: refillPerMinute,
		burst:           burst,
		blockDuration:   blockDuration,
	}
}

func (r *RateLimiter) recordFor(ip string) *ipRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ip]
	if !ok {
		rec = &ipRecord{limiter: rate.NewLimiter(rate.Limit(r.refillPerMinute/60.0), r.burst)}
		r.records[ip] = rec
	}
	return rec
}

// Allow reports whether ip may proceed right now, updating its block state
// on repeated violations.
func (r *RateLimiter) Allow(ip string, now time.Time) bool {
	rec := r.recordFor(ip)

	r.mu.Lock()
	if rec.blocked {
		if now.Sub(rec.blockedAt) < r.blockDuration {
			r.mu.Unlock()
			return false
		}
		rec.blocked = false
	}
	r.mu.Unlock()

	if rec.limiter.Allow() {
		return true
	}

	r.mu.Lock()
	rec.blocked = true
	rec.blockedAt = now
	r.mu.Unlock()
	return false
}

// Middleware returns gin middleware enforcing the limiter per request,
// responding 429 with a Retry-After header on rejection.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP(), time.Now()) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
