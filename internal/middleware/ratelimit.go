package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
)

// Counter is a fixed-window counter, implemented by the redis client.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitOptions configure one limiter. Admin requests are never limited.
type RateLimitOptions struct {
	Name   string
	Max    int64
	Window time.Duration
}

// RateLimit limits requests per client ip. Counter failures let the request through.
func RateLimit(counter Counter, opts RateLimitOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		key := fmt.Sprintf("diary:rate_limit:%s:%s", opts.Name, ip)
		count, err := counter.IncrWindow(c.Request.Context(), key, opts.Window)
		if err != nil {
			c.Next()
			return
		}
		if count > opts.Max {
			c.Header("Retry-After", strconv.Itoa(int(opts.Window.Seconds())+1))
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
