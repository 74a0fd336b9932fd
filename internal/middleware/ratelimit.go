package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/response"
)

// AdmissionLimiter throttles attempt creation per client IP with a token
// bucket. Exam starts are stampedes: a whole cohort hits the admission
// endpoint within seconds, and a wrong access code retried in a loop should
// not let one client brute-force its way in.
type AdmissionLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int
	interval time.Duration
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

// NewAdmissionLimiter allows rate requests per interval per IP.
func NewAdmissionLimiter(rate int, interval time.Duration) *AdmissionLimiter {
	l := &AdmissionLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
	}

	go func() {
		for range time.Tick(time.Minute) {
			l.evictIdle()
		}
	}()

	return l
}

// Middleware rejects over-limit requests with 429 before they reach the
// admission handler.
func (l *AdmissionLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		l.mu.Lock()
		b, ok := l.buckets[ip]
		if !ok {
			b = &bucket{tokens: l.rate, lastSeen: time.Now()}
			l.buckets[ip] = b
		}

		// Refill whole intervals since the bucket was last touched.
		elapsed := time.Since(b.lastSeen)
		if refill := int(elapsed/l.interval) * l.rate; refill > 0 {
			b.tokens += refill
			if b.tokens > l.rate {
				b.tokens = l.rate
			}
			b.lastSeen = time.Now()
		}

		if b.tokens <= 0 {
			l.mu.Unlock()
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		b.tokens--
		l.mu.Unlock()
		c.Next()
	}
}

func (l *AdmissionLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if time.Since(b.lastSeen) > 3*time.Minute {
			delete(l.buckets, ip)
		}
	}
}
