// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the process-local fixed-window limiter to Gin. Requests
// are keyed by authenticated identity when one exists and by client IP
// otherwise. Denied requests receive 429 with a Retry-After header rounded up
// to whole seconds.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/retail-assistant/internal/ratelimit"
)

// KeyFunc selects the identity used to key a rate-limit window.
type KeyFunc func(*gin.Context) string

// KeyByIdentityOrIP prefers the identity resolved by AuthGate and falls back
// to the client IP. Keys are prefixed so the namespaces never collide.
func KeyByIdentityOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := Identity(c); id != "" {
			return "id:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimit returns a middleware that admits at most max requests per window
// for each key.
func RateLimit(l *ratelimit.FixedWindow, max int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Check(key(c), max, window)
		SetRateHeaders(c, max, d)
		if !d.Allowed {
			abortWithError(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
			return
		}
		c.Next()
	}
}

// SetRateHeaders writes the X-RateLimit-* headers for d, plus Retry-After
// when d was denied.
func SetRateHeaders(c *gin.Context, max int, d ratelimit.Decision) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(max))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds(d.RetryAfter)))
	}
}

// RetryAfterSeconds rounds d up to whole seconds, never below 1.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
