package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// FormAttempt tracks form submissions from an IP
type FormAttempt struct {
	Count    int
	FirstAt  time.Time
	LockedAt time.Time
	IsLocked bool
}

// RateLimiter limits how often one IP may submit the signup and unsubscribe forms
type RateLimiter struct {
	mu           sync.Mutex
	attempts     map[string]*FormAttempt
	maxAttempts  int
	windowPeriod time.Duration
	lockDuration time.Duration
	now          func() time.Time
}

// NewRateLimiter creates a new rate limiter
// maxAttempts: submissions allowed within the window
// windowPeriod: time window for counting submissions
// lockDuration: how long to lock the IP once the limit is reached
func NewRateLimiter(maxAttempts int, windowPeriod, lockDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:     make(map[string]*FormAttempt),
		maxAttempts:  maxAttempts,
		windowPeriod: windowPeriod,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

// StartCleanup periodically drops expired entries until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

// cleanup removes expired entries
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, attempt := range rl.attempts {
		if attempt.IsLocked {
			if now.Sub(attempt.LockedAt) > rl.lockDuration {
				delete(rl.attempts, ip)
			}
		} else if now.Sub(attempt.FirstAt) > rl.windowPeriod {
			delete(rl.attempts, ip)
		}
	}
}

// Allow records a submission from ip and reports whether it may proceed,
// the submissions left in the window, and how long to wait when refused
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempt, exists := rl.attempts[ip]

	if exists && attempt.IsLocked {
		remaining := rl.lockDuration - now.Sub(attempt.LockedAt)
		if remaining > 0 {
			return false, 0, remaining
		}
		// Lock expired, reset
		exists = false
	}
	if exists && now.Sub(attempt.FirstAt) > rl.windowPeriod {
		exists = false
	}

	if !exists {
		rl.attempts[ip] = &FormAttempt{Count: 1, FirstAt: now}
		return true, rl.maxAttempts - 1, 0
	}

	attempt.Count++
	if attempt.Count > rl.maxAttempts {
		attempt.IsLocked = true
		attempt.LockedAt = now
		return false, 0, rl.lockDuration
	}
	return true, rl.maxAttempts - attempt.Count, 0
}

// FormRateLimitMiddleware rejects POST submissions over the limit with 429
func FormRateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only count POST requests (actual submissions)
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		allowed, remaining, wait := rl.Allow(c.ClientIP())
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     formatRateLimitError(wait),
				"retry_after": int(wait.Seconds()),
			})
			return
		}

		c.Next()
	}
}

// formatRateLimitError formats the rate limit error message
func formatRateLimitError(wait time.Duration) string {
	minutes := int(wait.Minutes())
	seconds := int(wait.Seconds()) % 60
	if minutes > 0 {
		return fmt.Sprintf("Too many requests. Please try again in %d minute(s) and %d second(s).", minutes, seconds)
	}
	return fmt.Sprintf("Too many requests. Please try again in %d second(s).", seconds)
}
