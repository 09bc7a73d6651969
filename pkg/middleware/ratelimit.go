package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit    = rate.Limit(10.0 / 60.0)  // 10 requests per minute
	journalLimit = rate.Limit(100.0 / 60.0) // 100 requests per minute
)

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		burst := 1
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
			burst = 5
		case strings.HasPrefix(path, "/api/v1/trades"):
			limit = journalLimit
			burst = 10
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, burst),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// StartVisitorCleanup drops idle limiters every minute until ctx is done.
func StartVisitorCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepVisitors(3 * time.Minute)
		}
	}
}

func sweepVisitors(idle time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	for key, v := range visitors {
		if time.Since(v.lastSeen) > idle {
			delete(visitors, key)
		}
	}
}

// RateLimit throttles requests per client and route. Authenticated callers
// are keyed by user id, everyone else by client IP, so it must run after
// SessionResolver.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.ClientIP()
		if id, ok := auth.CurrentIdentity(c).(auth.Authenticated); ok {
			clientID = id.ID
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}
