package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// maxTrackedIPs caps the rate limiter map; beyond it idle buckets are pruned.
	maxTrackedIPs = 4096

	// staleBucketAfter is how long an IP can stay idle before its bucket is dropped.
	staleBucketAfter = 10 * time.Minute
)

// IPRateLimiter implements per-IP rate limiting using a token bucket per
// client address.
type IPRateLimiter struct {
	limits map[string]*tokenBucket
	mu     sync.Mutex
	rate   time.Duration // refill interval for one token
	burst  int
}

type tokenBucket struct {
	tokens     float64
	capacity   float64
	lastRefill time.Time
	lastSeen   time.Time
}

// NewIPRateLimiter creates a rate limiter allowing requestsPerMinute per
// client IP with the given burst. Non-positive arguments fall back to
// 1000 requests per minute and a burst of 100.
func NewIPRateLimiter(requestsPerMinute, burst int) *IPRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	if burst <= 0 {
		burst = 100
	}
	return &IPRateLimiter{
		limits: make(map[string]*tokenBucket),
		rate:   time.Minute / time.Duration(requestsPerMinute),
		burst:  burst,
	}
}

// allow checks if a request is allowed for the given IP
func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket, exists := l.limits[ip]
	if !exists {
		if len(l.limits) >= maxTrackedIPs {
			l.prune(now)
		}
		l.limits[ip] = &tokenBucket{
			tokens:     float64(l.burst) - 1,
			capacity:   float64(l.burst),
			lastRefill: now,
			lastSeen:   now,
		}
		return true
	}
	bucket.lastSeen = now

	// Refill tokens based on elapsed time
	elapsed := now.Sub(bucket.lastRefill)
	refills := elapsed.Nanoseconds() / l.rate.Nanoseconds()
	if refills > 0 {
		bucket.tokens = min(bucket.capacity, bucket.tokens+float64(refills))
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// prune drops buckets for IPs not seen recently. Caller holds the lock.
func (l *IPRateLimiter) prune(now time.Time) {
	for ip, bucket := range l.limits {
		if now.Sub(bucket.lastSeen) > staleBucketAfter {
			delete(l.limits, ip)
		}
	}
}

// tracked reports how many client IPs currently hold a bucket.
func (l *IPRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limits)
}

// rateLimitMiddleware creates a Gin middleware for rate limiting
func rateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many requests. Please try again later.",
				Code:    http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

// bodyLimitMiddleware limits the size of request bodies. Declared oversize
// bodies are rejected outright; undeclared ones fail at read time through
// MaxBytesReader.
func bodyLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "request_too_large",
				Message: "Request body exceeds maximum allowed size.",
				Code:    http.StatusRequestEntityTooLarge,
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
